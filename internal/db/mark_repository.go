package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tOgg1/gradebook/internal/models"
)

// Mark repository errors.
var (
	ErrAssessmentLocked = errors.New("assessment is locked")
)

// MarkRepository serves rectangular reads and single/bulk writes of marks.
// It is the backend data service the grid coordinator talks to.
type MarkRepository struct {
	db *DB
}

// NewMarkRepository creates a new MarkRepository.
func NewMarkRepository(db *DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// GetCells returns the marks inside rect, clipped to the mark set. Rows are
// students in roster order, columns are assessments in column order, and a
// cell without a stored mark is no mark.
func (r *MarkRepository) GetCells(ctx context.Context, ref models.MarkSetRef, rect models.Window) ([][]models.Cell, error) {
	dims, err := markSetDims(ctx, r.db, ref)
	if err != nil {
		return nil, err
	}
	rect = rect.Clamp(dims)
	if rect.Empty() {
		return [][]models.Cell{}, nil
	}

	studentIDs, err := r.axisIDs(ctx, `
		SELECT id FROM students WHERE class_id = ? ORDER BY sort_order, id LIMIT ? OFFSET ?
	`, ref.ClassID, rect.RowCount, rect.RowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	assessmentIDs, err := r.axisIDs(ctx, `
		SELECT id FROM assessments WHERE mark_set_id = ? ORDER BY idx LIMIT ? OFFSET ?
	`, ref.MarkSetID, rect.ColCount, rect.ColStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}

	rowOf := make(map[string]int, len(studentIDs))
	for i, id := range studentIDs {
		rowOf[id] = i
	}
	colOf := make(map[string]int, len(assessmentIDs))
	for i, id := range assessmentIDs {
		colOf[id] = i
	}

	cells := make([][]models.Cell, len(studentIDs))
	for i := range cells {
		cells[i] = make([]models.Cell, len(assessmentIDs))
	}
	if len(studentIDs) == 0 || len(assessmentIDs) == 0 {
		return cells, nil
	}

	args := make([]any, 0, 1+len(studentIDs)+len(assessmentIDs))
	args = append(args, ref.MarkSetID)
	for _, id := range studentIDs {
		args = append(args, id)
	}
	for _, id := range assessmentIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, assessment_id, value FROM scores
		WHERE mark_set_id = ?
		  AND student_id IN (`+placeholders(len(studentIDs))+`)
		  AND assessment_id IN (`+placeholders(len(assessmentIDs))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var studentID, assessmentID string
		var value sql.NullFloat64
		if err := rows.Scan(&studentID, &assessmentID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		if !value.Valid {
			continue
		}
		cells[rowOf[studentID]][colOf[assessmentID]] = models.Mark(value.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return cells, nil
}

// UpdateCell writes one mark.
func (r *MarkRepository) UpdateCell(ctx context.Context, ref models.MarkSetRef, edit models.CellEdit) error {
	return r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		dims, err := markSetDims(ctx, tx, ref)
		if err != nil {
			return err
		}
		if err := edit.Validate(dims); err != nil {
			return err
		}

		target, err := resolveCell(ctx, tx, ref, edit.Row, edit.Col)
		if err != nil {
			return err
		}
		if target.locked {
			return ErrAssessmentLocked
		}
		return upsertScore(ctx, tx, ref.MarkSetID, target.studentID, target.assessmentID, edit.Value, time.Now().UTC().Format(time.RFC3339))
	})
}

// BulkUpdate writes a batch of edits in one transaction. Invalid edits are
// rejected individually and do not abort the rest of the batch.
func (r *MarkRepository) BulkUpdate(ctx context.Context, ref models.MarkSetRef, edits []models.PendingEdit) (*models.BulkUpdateResult, error) {
	var result *models.BulkUpdateResult

	err := r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		result = &models.BulkUpdateResult{}

		dims, err := markSetDims(ctx, tx, ref)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339)
		reject := func(edit models.PendingEdit, err error) {
			result.Rejected++
			result.Errors = append(result.Errors, models.CellRejection{
				Row:     edit.Row,
				Col:     edit.Col,
				Message: err.Error(),
			})
		}

		for _, edit := range edits {
			if err := edit.Validate(dims); err != nil {
				reject(edit, err)
				continue
			}
			target, err := resolveCell(ctx, tx, ref, edit.Row, edit.Col)
			if err != nil {
				return err
			}
			if target.locked {
				reject(edit, ErrAssessmentLocked)
				continue
			}
			if err := upsertScore(ctx, tx, ref.MarkSetID, target.studentID, target.assessmentID, edit.Value, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type cellTarget struct {
	studentID    string
	assessmentID string
	locked       bool
}

func resolveCell(ctx context.Context, q queryer, ref models.MarkSetRef, row, col int) (cellTarget, error) {
	var target cellTarget
	err := q.QueryRowContext(ctx, `
		SELECT id FROM students WHERE class_id = ? ORDER BY sort_order, id LIMIT 1 OFFSET ?
	`, ref.ClassID, row).Scan(&target.studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return target, models.ErrCellOutOfRange
		}
		return target, fmt.Errorf("failed to resolve student row: %w", err)
	}

	var locked int
	err = q.QueryRowContext(ctx, `
		SELECT id, locked FROM assessments WHERE mark_set_id = ? ORDER BY idx LIMIT 1 OFFSET ?
	`, ref.MarkSetID, col).Scan(&target.assessmentID, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return target, models.ErrCellOutOfRange
		}
		return target, fmt.Errorf("failed to resolve assessment column: %w", err)
	}
	target.locked = locked != 0
	return target, nil
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func upsertScore(ctx context.Context, ex execer, markSetID, studentID, assessmentID string, value models.Cell, now string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO scores (mark_set_id, student_id, assessment_id, value, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (mark_set_id, student_id, assessment_id)
		DO UPDATE SET value = excluded.value, state = excluded.state, updated_at = excluded.updated_at
	`, markSetID, studentID, assessmentID, value.Ptr(), string(models.StateForCell(value)), now)
	if err != nil {
		return fmt.Errorf("failed to write score: %w", err)
	}
	return nil
}

func (r *MarkRepository) axisIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
