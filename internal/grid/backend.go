package grid

import (
	"context"

	"github.com/tOgg1/gradebook/internal/models"
)

// Backend is the data service behind the grid.
type Backend interface {
	// GetCells returns at most the requested rectangle. Missing cells are
	// no mark.
	GetCells(ctx context.Context, ref models.MarkSetRef, rect models.Window) ([][]models.Cell, error)

	// UpdateCell writes one cell.
	UpdateCell(ctx context.Context, ref models.MarkSetRef, edit models.CellEdit) error

	// BulkUpdate writes a batch and reports per-cell rejections.
	BulkUpdate(ctx context.Context, ref models.MarkSetRef, edits []models.PendingEdit) (*models.BulkUpdateResult, error)
}
