package grid

import "github.com/tOgg1/gradebook/internal/models"

// CellUpdate sets one matrix cell.
type CellUpdate struct {
	Row   int
	Col   int
	Value models.Cell
}

// Matrix is an immutable snapshot of the loaded cells. Rows that were never
// written are nil and read as no mark. Merges return a new snapshot that
// shares every untouched row with its parent.
type Matrix struct {
	dims models.Dims
	rows [][]models.Cell
}

// NewMatrix allocates an all-no-mark matrix.
func NewMatrix(dims models.Dims) *Matrix {
	dims.Rows = max(dims.Rows, 0)
	dims.Cols = max(dims.Cols, 0)
	return &Matrix{dims: dims, rows: make([][]models.Cell, dims.Rows)}
}

// Dims returns the matrix size.
func (m *Matrix) Dims() models.Dims {
	return m.dims
}

// Cell returns the value at (row, col). Out-of-range reads are no mark.
func (m *Matrix) Cell(row, col int) models.Cell {
	if !m.dims.Contains(row, col) || m.rows[row] == nil {
		return models.NoMark()
	}
	return m.rows[row][col]
}

// Window copies the cells inside w, clipped to the matrix.
func (m *Matrix) Window(w models.Window) [][]models.Cell {
	w = w.Clamp(m.dims)
	out := make([][]models.Cell, w.RowCount)
	for i := range out {
		out[i] = make([]models.Cell, w.ColCount)
		row := m.rows[w.RowStart+i]
		if row == nil {
			continue
		}
		copy(out[i], row[w.ColStart:w.ColEnd()])
	}
	return out
}

// MergeTile copies a fetched rectangle into the region at bounds. Values
// beyond bounds are ignored; cells the rectangle does not reach become no
// mark.
func (m *Matrix) MergeTile(bounds models.Window, cells [][]models.Cell) *Matrix {
	bounds = bounds.Clamp(m.dims)
	if bounds.Empty() {
		return m
	}
	next := m.shallowCopy()
	for i := 0; i < bounds.RowCount; i++ {
		row := next.ownRow(m, bounds.RowStart+i)
		var src []models.Cell
		if i < len(cells) {
			src = cells[i]
		}
		for j := 0; j < bounds.ColCount; j++ {
			if j < len(src) {
				row[bounds.ColStart+j] = src[j]
			} else {
				row[bounds.ColStart+j] = models.NoMark()
			}
		}
	}
	return next
}

// With returns a snapshot with the updates applied. Updates outside the
// matrix are skipped.
func (m *Matrix) With(updates ...CellUpdate) *Matrix {
	var next *Matrix
	for _, u := range updates {
		if !m.dims.Contains(u.Row, u.Col) {
			continue
		}
		if next == nil {
			next = m.shallowCopy()
		}
		next.ownRow(m, u.Row)[u.Col] = u.Value
	}
	if next == nil {
		return m
	}
	return next
}

func (m *Matrix) shallowCopy() *Matrix {
	rows := make([][]models.Cell, len(m.rows))
	copy(rows, m.rows)
	return &Matrix{dims: m.dims, rows: rows}
}

// ownRow makes row writable in m without touching parent's copy of it.
func (m *Matrix) ownRow(parent *Matrix, row int) []models.Cell {
	if m.rows[row] != nil && (parent.rows[row] == nil || &m.rows[row][0] != &parent.rows[row][0]) {
		return m.rows[row]
	}
	owned := make([]models.Cell, m.dims.Cols)
	if parent.rows[row] != nil {
		copy(owned, parent.rows[row])
	}
	m.rows[row] = owned
	return owned
}
