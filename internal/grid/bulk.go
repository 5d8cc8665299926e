package grid

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tOgg1/gradebook/internal/models"
)

// BulkAction is a toolbar action applied to every cell of a selection.
type BulkAction string

const (
	ActionNoMark BulkAction = "no_mark"
	ActionZero   BulkAction = "zero"
	ActionScored BulkAction = "scored"
)

// BulkOutcome summarizes a bulk write. Rejections are per cell and do not
// make the call fail.
type BulkOutcome struct {
	Applied  int                    `json:"applied"`
	Rejected int                    `json:"rejected"`
	Errors   []models.CellRejection `json:"errors,omitempty"`
	// Dropped lists cells removed from the batch before it was sent.
	Dropped []models.CellRejection `json:"dropped,omitempty"`
}

// Summary renders the outcome for display.
func (o *BulkOutcome) Summary() string {
	var b strings.Builder
	if o.Rejected > 0 {
		fmt.Fprintf(&b, "rejected %d cells", o.Rejected)
		if len(o.Errors) > 0 {
			fmt.Fprintf(&b, "; first error: %s", o.Errors[0].Message)
		}
	} else {
		fmt.Fprintf(&b, "applied %d cells", o.Applied)
	}
	if len(o.Dropped) > 0 {
		fmt.Fprintf(&b, "; dropped %d cells (first: %s)", len(o.Dropped), o.Dropped[0].Message)
	}
	return b.String()
}

// ApplyBulk sends edits in one bulk write. Several edits to one cell are
// collapsed to the last of them. Only the edits the backend accepted reach
// the matrix. Aggregates are invalidated even when some
// edits were rejected. An error is returned only when the write as a whole
// failed, in which case the matrix is untouched.
func (c *Coordinator) ApplyBulk(ctx context.Context, edits []models.PendingEdit) (*BulkOutcome, error) {
	c.mu.Lock()
	ref, gen := c.ref, c.generation.Current()
	c.mu.Unlock()

	if ref.IsZero() {
		return nil, ErrNoContext
	}
	if len(edits) == 0 {
		return &BulkOutcome{}, nil
	}
	edits = collapseEdits(edits)

	result, err := c.backend.BulkUpdate(ctx, ref, edits)
	if err != nil {
		c.metrics.Edits.WithLabelValues("bulk", "error").Inc()
		c.logger.Warn().Err(err).Int("edits", len(edits)).Msg("bulk write failed")
		return nil, fmt.Errorf("failed to apply bulk edit: %w", err)
	}
	if result == nil {
		result = &models.BulkUpdateResult{}
	}

	rejected := make(map[cellKey]struct{}, len(result.Errors))
	for _, rej := range result.Errors {
		rejected[cellKey{rej.Row, rej.Col}] = struct{}{}
	}

	updates := make([]CellUpdate, 0, len(edits))
	var rows, cols []int
	for _, edit := range edits {
		if _, ok := rejected[cellKey{edit.Row, edit.Col}]; ok {
			continue
		}
		updates = append(updates, CellUpdate{Row: edit.Row, Col: edit.Col, Value: edit.Value})
		rows = append(rows, edit.Row)
		cols = append(cols, edit.Col)
	}

	c.mu.Lock()
	if c.generation.IsCurrent(gen) {
		c.applyLocked(updates...)
	}
	c.mu.Unlock()

	outcome := &BulkOutcome{
		Applied:  len(updates),
		Rejected: max(result.Rejected, len(result.Errors)),
		Errors:   result.Errors,
	}

	label := "ok"
	if outcome.Rejected > 0 {
		label = "partial"
		c.logger.Warn().
			Int("applied", outcome.Applied).
			Int("rejected", outcome.Rejected).
			Msg("bulk write partially rejected")
	}
	c.metrics.Edits.WithLabelValues("bulk", label).Inc()

	c.publish(ref, models.EventTypeBulkApplied, models.EntityTypeMarkSet, ref.String(), models.BulkAppliedPayload{
		Applied:  outcome.Applied,
		Rejected: outcome.Rejected,
		Errors:   outcome.Errors,
	})
	c.publish(ref, models.EventTypeAggregatesInvalidated, models.EntityTypeMarkSet, ref.String(), models.AggregatesInvalidatedPayload{
		Rows: distinct(rows),
		Cols: distinct(cols),
	})
	return outcome, nil
}

// ApplyPaste builds edits from pasted text and applies them. Cells dropped
// while parsing are reported in the outcome.
func (c *Coordinator) ApplyPaste(ctx context.Context, anchorRow, anchorCol int, text string) (*BulkOutcome, error) {
	edits, dropped, err := c.Paste(anchorRow, anchorCol, text)
	if err != nil {
		return nil, err
	}
	outcome, err := c.ApplyBulk(ctx, edits)
	if err != nil {
		return nil, err
	}
	outcome.Dropped = dropped
	return outcome, nil
}

// FillDown copies the first row of sel into every other row of sel using
// the loaded values. An unloaded or empty source cell fills as no mark.
func (c *Coordinator) FillDown(sel models.Window) ([]models.PendingEdit, error) {
	sel, snapshot, err := c.selection(sel)
	if err != nil {
		return nil, err
	}
	var edits []models.PendingEdit
	for r := sel.RowStart + 1; r < sel.RowEnd(); r++ {
		for col := sel.ColStart; col < sel.ColEnd(); col++ {
			edits = append(edits, pendingEdit(r, col, snapshot.Cell(sel.RowStart, col)))
		}
	}
	return edits, nil
}

// FillRight copies the first column of sel into every other column of sel.
func (c *Coordinator) FillRight(sel models.Window) ([]models.PendingEdit, error) {
	sel, snapshot, err := c.selection(sel)
	if err != nil {
		return nil, err
	}
	var edits []models.PendingEdit
	for r := sel.RowStart; r < sel.RowEnd(); r++ {
		source := snapshot.Cell(r, sel.ColStart)
		for col := sel.ColStart + 1; col < sel.ColEnd(); col++ {
			edits = append(edits, pendingEdit(r, col, source))
		}
	}
	return edits, nil
}

// SetSelection builds one edit per selected cell for a toolbar action.
// ActionZero always stores an explicit zero; ActionScored uses value, where
// 0 is also an explicit zero.
func (c *Coordinator) SetSelection(sel models.Window, action BulkAction, value float64) ([]models.PendingEdit, error) {
	sel, _, err := c.selection(sel)
	if err != nil {
		return nil, err
	}

	var cell models.Cell
	switch action {
	case ActionNoMark:
		cell = models.NoMark()
	case ActionZero:
		cell = models.Mark(0)
	case ActionScored:
		cell, err = NormalizeMark(value, ZeroAsExplicit)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown bulk action %q", action)
	}

	edits := make([]models.PendingEdit, 0, sel.RowCount*sel.ColCount)
	for r := sel.RowStart; r < sel.RowEnd(); r++ {
		for col := sel.ColStart; col < sel.ColEnd(); col++ {
			edits = append(edits, pendingEdit(r, col, cell))
		}
	}
	return edits, nil
}

// Paste parses a block of text anchored at (anchorRow, anchorCol). Rows are
// split on newlines and cells on tabs, or on commas when a line has no tab.
// Blank and 0 become no mark. Negative or non-numeric cells and cells past
// the matrix edge are dropped individually.
func (c *Coordinator) Paste(anchorRow, anchorCol int, text string) ([]models.PendingEdit, []models.CellRejection, error) {
	ref, dims := c.Context()
	if ref.IsZero() {
		return nil, nil, ErrNoContext
	}
	if !dims.Contains(anchorRow, anchorCol) {
		return nil, nil, &EditError{Row: anchorRow, Col: anchorCol, Err: ErrOutOfRange}
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, nil, ErrEmptyEdit
	}

	var edits []models.PendingEdit
	var dropped []models.CellRejection
	for i, line := range strings.Split(text, "\n") {
		sep := "\t"
		if !strings.Contains(line, "\t") {
			sep = ","
		}
		for j, field := range strings.Split(line, sep) {
			row, col := anchorRow+i, anchorCol+j
			if !dims.Contains(row, col) {
				dropped = append(dropped, models.CellRejection{Row: row, Col: col, Message: ErrOutOfRange.Error()})
				continue
			}
			value, err := ParseMark(field, ZeroAsNoMark)
			if err != nil {
				dropped = append(dropped, models.CellRejection{Row: row, Col: col, Message: err.Error()})
				continue
			}
			edits = append(edits, pendingEdit(row, col, value))
		}
	}
	return edits, dropped, nil
}

func (c *Coordinator) selection(sel models.Window) (models.Window, *Matrix, error) {
	ref, dims := c.Context()
	if ref.IsZero() {
		return models.Window{}, nil, ErrNoContext
	}
	clamped := sel.Clamp(dims)
	if clamped.Empty() {
		return models.Window{}, nil, fmt.Errorf("%w: selection %s", ErrOutOfRange, sel)
	}
	return clamped, c.Snapshot(), nil
}

// collapseEdits keeps one edit per cell, at the position of its first
// occurrence and with the value of its last.
func collapseEdits(edits []models.PendingEdit) []models.PendingEdit {
	index := make(map[cellKey]int, len(edits))
	out := make([]models.PendingEdit, 0, len(edits))
	for _, edit := range edits {
		key := cellKey{edit.Row, edit.Col}
		if i, ok := index[key]; ok {
			out[i] = edit
			continue
		}
		index[key] = len(out)
		out = append(out, edit)
	}
	return out
}

func distinct(values []int) []int {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
