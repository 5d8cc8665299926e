package grid

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tOgg1/gradebook/internal/models"
)

var testRef = models.MarkSetRef{ClassID: "class-1", MarkSetID: "marks-1"}

// fakeBackend serves a dense in-memory matrix. When gate is set, reads block
// until it is closed. With readBeforeGate a read copies its rows before
// blocking, like a query that finished before its result was delivered.
type fakeBackend struct {
	mu   sync.Mutex
	data [][]models.Cell

	gate           chan struct{}
	started        chan models.Window
	readBeforeGate bool

	getErr     error
	updateErr  error
	bulkErr    error
	rejectBulk func(i int, edit models.PendingEdit) string

	gets        []models.Window
	updates     []models.CellEdit
	bulks       [][]models.PendingEdit
	running     int
	maxParallel int
}

func newFakeBackend(dims models.Dims) *fakeBackend {
	data := make([][]models.Cell, dims.Rows)
	for r := range data {
		data[r] = make([]models.Cell, dims.Cols)
		for c := range data[r] {
			data[r][c] = models.Mark(float64(r*100 + c + 1))
		}
	}
	return &fakeBackend{data: data}
}

func (f *fakeBackend) GetCells(ctx context.Context, ref models.MarkSetRef, rect models.Window) ([][]models.Cell, error) {
	f.mu.Lock()
	f.gets = append(f.gets, rect)
	f.running++
	f.maxParallel = max(f.maxParallel, f.running)
	gate, started, getErr := f.gate, f.started, f.getErr
	var early [][]models.Cell
	if f.readBeforeGate {
		early = f.read(rect)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- rect
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}
	if early != nil {
		return early, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(rect), nil
}

// read copies rect out of data. Callers hold mu.
func (f *fakeBackend) read(rect models.Window) [][]models.Cell {
	out := make([][]models.Cell, 0, rect.RowCount)
	for r := rect.RowStart; r < rect.RowEnd() && r < len(f.data); r++ {
		row := make([]models.Cell, 0, rect.ColCount)
		for c := rect.ColStart; c < rect.ColEnd() && c < len(f.data[r]); c++ {
			row = append(row, f.data[r][c])
		}
		out = append(out, row)
	}
	return out
}

func (f *fakeBackend) UpdateCell(ctx context.Context, ref models.MarkSetRef, edit models.CellEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, edit)
	if f.updateErr != nil {
		return f.updateErr
	}
	f.data[edit.Row][edit.Col] = edit.Value
	return nil
}

func (f *fakeBackend) BulkUpdate(ctx context.Context, ref models.MarkSetRef, edits []models.PendingEdit) (*models.BulkUpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulks = append(f.bulks, edits)
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	result := &models.BulkUpdateResult{}
	for i, edit := range edits {
		if f.rejectBulk != nil {
			if msg := f.rejectBulk(i, edit); msg != "" {
				result.Rejected++
				result.Errors = append(result.Errors, models.CellRejection{Row: edit.Row, Col: edit.Col, Message: msg})
				continue
			}
		}
		f.data[edit.Row][edit.Col] = edit.Value
	}
	return result, nil
}

func (f *fakeBackend) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeBackend) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

func (f *fakeBackend) value(row, col int) models.Cell {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[row][col]
}

func newTestCoordinator(t *testing.T, backend Backend, dims models.Dims, opts ...Option) *Coordinator {
	t.Helper()

	c := NewCoordinator(backend, DefaultConfig(), opts...)
	c.Advance(testRef, dims)
	t.Cleanup(c.Wait)
	return c
}

func requireLoaded(t *testing.T, c *Coordinator, w models.Window) {
	t.Helper()
	require.NoError(t, c.LoadWindow(context.Background(), w, models.Dims{}))
}
