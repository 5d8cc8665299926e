package grid

import (
	"context"
	"errors"

	"github.com/tOgg1/gradebook/internal/models"
)

// CellState is where a single-cell write ended up.
//
//	Clean -> Dirty -> Clean | DesyncResolved | DesyncUnresolved
type CellState int

const (
	// CellClean means the matrix agrees with the backend.
	CellClean CellState = iota
	// CellDirty means a write is pending.
	CellDirty
	// CellDesyncResolved means the write failed and the cell was re-read.
	CellDesyncResolved
	// CellDesyncUnresolved means the write and the re-read both failed; the
	// matrix keeps its previous value.
	CellDesyncUnresolved
)

func (s CellState) String() string {
	switch s {
	case CellClean:
		return "clean"
	case CellDirty:
		return "dirty"
	case CellDesyncResolved:
		return "desync_resolved"
	case CellDesyncUnresolved:
		return "desync_unresolved"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s CellState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CellOutcome reports a single-cell edit.
type CellOutcome struct {
	Row   int         `json:"row"`
	Col   int         `json:"col"`
	Value models.Cell `json:"value"`
	State CellState   `json:"state"`
}

// SetCell parses text typed into one cell and writes it. Blank text and 0
// clear the cell; negative or non-numeric text is rejected before any write.
// The matrix changes only after the backend accepts the write. On a rejected
// write the cell is re-read once and the write error is returned.
func (c *Coordinator) SetCell(ctx context.Context, row, col int, text string) (CellOutcome, error) {
	outcome := CellOutcome{Row: row, Col: col, Value: c.Cell(row, col), State: CellClean}

	value, err := ParseMark(text, ZeroAsNoMark)
	if err != nil {
		c.metrics.Edits.WithLabelValues("single", "invalid").Inc()
		return outcome, &EditError{Row: row, Col: col, Err: err}
	}
	return c.WriteCell(ctx, row, col, value)
}

// WriteCell writes an already normalized value to one cell.
func (c *Coordinator) WriteCell(ctx context.Context, row, col int, value models.Cell) (CellOutcome, error) {
	outcome := CellOutcome{Row: row, Col: col, Value: c.Cell(row, col), State: CellClean}

	c.mu.Lock()
	ref, dims, gen := c.ref, c.dims, c.generation.Current()
	c.mu.Unlock()

	if ref.IsZero() {
		return outcome, ErrNoContext
	}
	if !dims.Contains(row, col) {
		c.metrics.Edits.WithLabelValues("single", "invalid").Inc()
		return outcome, &EditError{Row: row, Col: col, Err: ErrOutOfRange}
	}
	if err := models.ValidateMark(value); err != nil {
		c.metrics.Edits.WithLabelValues("single", "invalid").Inc()
		if errors.Is(err, models.ErrNegativeMark) {
			err = ErrNegativeMark
		} else {
			err = ErrInvalidInput
		}
		return outcome, &EditError{Row: row, Col: col, Err: err}
	}

	edit := models.CellEdit{Row: row, Col: col, Value: value, Kind: editKindFor(value)}
	outcome.State = CellDirty

	if err := c.backend.UpdateCell(ctx, ref, edit); err != nil {
		c.metrics.Edits.WithLabelValues("single", "rejected").Inc()
		c.logger.Warn().Err(err).Int("row", row).Int("col", col).Msg("cell write failed")

		outcome.State = c.resync(ctx, ref, gen, row, col)
		outcome.Value = c.Cell(row, col)
		c.publish(ref, models.EventTypeCellWriteFailed, models.EntityTypeCell, cellID(row, col), models.CellWrittenPayload{
			Edit:    edit,
			Outcome: outcome.State.String(),
			Error:   err.Error(),
		})
		return outcome, &EditError{Row: row, Col: col, Err: err}
	}

	c.mu.Lock()
	if c.generation.IsCurrent(gen) {
		c.applyLocked(CellUpdate{Row: row, Col: col, Value: value})
	}
	c.mu.Unlock()

	c.metrics.Edits.WithLabelValues("single", "ok").Inc()
	outcome.State = CellClean
	outcome.Value = value

	c.publish(ref, models.EventTypeCellWritten, models.EntityTypeCell, cellID(row, col), models.CellWrittenPayload{
		Edit:    edit,
		Outcome: outcome.State.String(),
	})
	c.publish(ref, models.EventTypeAggregatesInvalidated, models.EntityTypeMarkSet, ref.String(), models.AggregatesInvalidatedPayload{
		Rows: []int{row},
		Cols: []int{col},
	})
	return outcome, nil
}

// resync re-reads one cell after a failed write. A failed re-read leaves the
// matrix as it was.
func (c *Coordinator) resync(ctx context.Context, ref models.MarkSetRef, gen uint64, row, col int) CellState {
	readCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	c.gridGets.Add(1)
	cells, err := c.backend.GetCells(readCtx, ref, models.CellWindow(row, col))
	if err != nil {
		c.logger.Debug().Err(err).Int("row", row).Int("col", col).Msg("cell resync failed")
		return CellDesyncUnresolved
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.generation.IsCurrent(gen) {
		return CellDesyncUnresolved
	}
	c.matrix.Store(c.matrix.Load().MergeTile(models.CellWindow(row, col), cells))
	return CellDesyncResolved
}
