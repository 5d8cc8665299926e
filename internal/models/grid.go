package models

import "fmt"

// MarkSetRef identifies the logical matrix: one mark set of one class.
type MarkSetRef struct {
	ClassID   string `json:"class_id" yaml:"class_id"`
	MarkSetID string `json:"mark_set_id" yaml:"mark_set_id"`
}

// IsZero reports whether no context is selected.
func (r MarkSetRef) IsZero() bool {
	return r.ClassID == "" && r.MarkSetID == ""
}

func (r MarkSetRef) String() string {
	return r.ClassID + "/" + r.MarkSetID
}

// Dims is the (student count, assessment count) size of a matrix.
type Dims struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Empty reports whether the matrix has no cells.
func (d Dims) Empty() bool {
	return d.Rows <= 0 || d.Cols <= 0
}

// Contains reports whether (row, col) lies inside the matrix.
func (d Dims) Contains(row, col int) bool {
	return row >= 0 && col >= 0 && row < d.Rows && col < d.Cols
}

// Window is a rectangular region of the logical matrix.
type Window struct {
	RowStart int `json:"row_start"`
	RowCount int `json:"row_count"`
	ColStart int `json:"col_start"`
	ColCount int `json:"col_count"`
}

// RowEnd is the exclusive end row.
func (w Window) RowEnd() int {
	return w.RowStart + w.RowCount
}

// ColEnd is the exclusive end column.
func (w Window) ColEnd() int {
	return w.ColStart + w.ColCount
}

// Empty reports whether the window covers no cells.
func (w Window) Empty() bool {
	return w.RowCount <= 0 || w.ColCount <= 0
}

// Contains reports whether (row, col) lies inside the window.
func (w Window) Contains(row, col int) bool {
	return row >= w.RowStart && row < w.RowEnd() && col >= w.ColStart && col < w.ColEnd()
}

// Clamp clips the window to [0, d.Rows) x [0, d.Cols).
func (w Window) Clamp(d Dims) Window {
	rs := clampInt(w.RowStart, 0, d.Rows)
	re := clampInt(w.RowEnd(), rs, d.Rows)
	cs := clampInt(w.ColStart, 0, d.Cols)
	ce := clampInt(w.ColEnd(), cs, d.Cols)
	return Window{RowStart: rs, RowCount: re - rs, ColStart: cs, ColCount: ce - cs}
}

func (w Window) String() string {
	return fmt.Sprintf("rows[%d,%d) cols[%d,%d)", w.RowStart, w.RowEnd(), w.ColStart, w.ColEnd())
}

// CellWindow is the 1x1 window at (row, col).
func CellWindow(row, col int) Window {
	return Window{RowStart: row, RowCount: 1, ColStart: col, ColCount: 1}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CellEdit is a single-cell write.
type CellEdit struct {
	Row   int      `json:"row"`
	Col   int      `json:"col"`
	Value Cell     `json:"value"`
	Kind  EditKind `json:"edit_kind"`
}

// PendingEdit is the unit of both single-cell and bulk edit requests.
type PendingEdit struct {
	Row   int       `json:"row"`
	Col   int       `json:"col"`
	State EditState `json:"state"`
	Value Cell      `json:"value"`
}

// CellRejection describes one cell the backend (or the client) refused.
type CellRejection struct {
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// BulkUpdateResult is the backend response to a bulk write.
type BulkUpdateResult struct {
	Rejected int             `json:"rejected"`
	Errors   []CellRejection `json:"errors,omitempty"`
}
