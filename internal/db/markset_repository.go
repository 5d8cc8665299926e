package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tOgg1/gradebook/internal/models"
)

// Mark set repository errors.
var (
	ErrClassNotFound      = errors.New("class not found")
	ErrMarkSetNotFound    = errors.New("mark set not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
)

// MarkSetRepository handles classes, mark sets and the roster/assessment
// axes that give a marks grid its dimensions.
type MarkSetRepository struct {
	db *DB
}

// NewMarkSetRepository creates a new MarkSetRepository.
func NewMarkSetRepository(db *DB) *MarkSetRepository {
	return &MarkSetRepository{db: db}
}

// CreateClass adds a class.
func (r *MarkSetRepository) CreateClass(ctx context.Context, class *models.Class) error {
	if strings.TrimSpace(class.Name) == "" {
		return fmt.Errorf("class name is required")
	}
	if class.ID == "" {
		class.ID = uuid.New().String()
	}
	class.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, created_at) VALUES (?, ?, ?)
	`, class.ID, class.Name, class.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert class: %w", err)
	}
	return nil
}

// CreateMarkSet adds a mark set to an existing class.
func (r *MarkSetRepository) CreateMarkSet(ctx context.Context, markSet *models.MarkSet) error {
	if markSet.ClassID == "" {
		return fmt.Errorf("mark set class id is required")
	}
	if strings.TrimSpace(markSet.Name) == "" {
		return fmt.Errorf("mark set name is required")
	}
	if markSet.ID == "" {
		markSet.ID = uuid.New().String()
	}
	markSet.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mark_sets (id, class_id, name, created_at) VALUES (?, ?, ?, ?)
	`, markSet.ID, markSet.ClassID, markSet.Name, markSet.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert mark set: %w", err)
	}
	return nil
}

// AddStudents appends students to the end of a class roster.
func (r *MarkSetRepository) AddStudents(ctx context.Context, classID string, students []*models.Student) error {
	return r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sort_order) + 1, 0) FROM students WHERE class_id = ?
		`, classID).Scan(&next); err != nil {
			return fmt.Errorf("failed to read roster order: %w", err)
		}

		for _, student := range students {
			if student.ID == "" {
				student.ID = uuid.New().String()
			}
			student.ClassID = classID
			student.SortOrder = next
			next++
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO students (id, class_id, display_name, sort_order) VALUES (?, ?, ?, ?)
			`, student.ID, classID, student.DisplayName, student.SortOrder); err != nil {
				return fmt.Errorf("failed to insert student: %w", err)
			}
		}
		return nil
	})
}

// AddAssessments appends assessment columns to a mark set.
func (r *MarkSetRepository) AddAssessments(ctx context.Context, markSetID string, assessments []*models.Assessment) error {
	return r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(idx) + 1, 0) FROM assessments WHERE mark_set_id = ?
		`, markSetID).Scan(&next); err != nil {
			return fmt.Errorf("failed to read assessment order: %w", err)
		}

		for _, a := range assessments {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			if a.OutOf <= 0 {
				a.OutOf = 100
			}
			a.MarkSetID = markSetID
			a.Idx = next
			next++
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO assessments (id, mark_set_id, title, idx, out_of, locked) VALUES (?, ?, ?, ?, ?, ?)
			`, a.ID, markSetID, a.Title, a.Idx, a.OutOf, boolToInt(a.Locked)); err != nil {
				return fmt.Errorf("failed to insert assessment: %w", err)
			}
		}
		return nil
	})
}

// SetAssessmentLocked locks or unlocks an assessment column for writes.
func (r *MarkSetRepository) SetAssessmentLocked(ctx context.Context, ref models.MarkSetRef, col int, locked bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE assessments SET locked = ? WHERE mark_set_id = ? AND idx = ?
	`, boolToInt(locked), ref.MarkSetID, col)
	if err != nil {
		return fmt.Errorf("failed to update assessment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAssessmentNotFound
	}
	return nil
}

// GetMarkSet loads a mark set and checks that it belongs to ref's class.
func (r *MarkSetRepository) GetMarkSet(ctx context.Context, ref models.MarkSetRef) (*models.MarkSet, error) {
	return getMarkSet(ctx, r.db, ref)
}

// ListMarkSets lists the mark sets of a class, oldest first.
func (r *MarkSetRepository) ListMarkSets(ctx context.Context, classID string) ([]*models.MarkSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, name, created_at FROM mark_sets WHERE class_id = ? ORDER BY created_at, id
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mark sets: %w", err)
	}
	defer rows.Close()

	var markSets []*models.MarkSet
	for rows.Next() {
		var ms models.MarkSet
		var createdAt string
		if err := rows.Scan(&ms.ID, &ms.ClassID, &ms.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan mark set: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			ms.CreatedAt = t
		}
		markSets = append(markSets, &ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mark sets: %w", err)
	}
	return markSets, nil
}

// ListClasses lists all classes by name.
func (r *MarkSetRepository) ListClasses(ctx context.Context) ([]*models.Class, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM classes ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	var classes []*models.Class
	for rows.Next() {
		var class models.Class
		var createdAt string
		if err := rows.Scan(&class.ID, &class.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			class.CreatedAt = t
		}
		classes = append(classes, &class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classes: %w", err)
	}
	return classes, nil
}

// Dims returns the (student count, assessment count) of a mark set.
func (r *MarkSetRepository) Dims(ctx context.Context, ref models.MarkSetRef) (models.Dims, error) {
	return markSetDims(ctx, r.db, ref)
}

// Students returns the roster rows in grid order.
func (r *MarkSetRepository) Students(ctx context.Context, classID string, offset, limit int) ([]*models.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, display_name, sort_order FROM students
		WHERE class_id = ?
		ORDER BY sort_order, id
		LIMIT ? OFFSET ?
	`, classID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []*models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.ClassID, &s.DisplayName, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return students, nil
}

// Assessments returns the assessment columns in grid order.
func (r *MarkSetRepository) Assessments(ctx context.Context, markSetID string) ([]*models.Assessment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mark_set_id, title, idx, out_of, locked FROM assessments
		WHERE mark_set_id = ?
		ORDER BY idx
	`, markSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var assessments []*models.Assessment
	for rows.Next() {
		var a models.Assessment
		var locked int
		if err := rows.Scan(&a.ID, &a.MarkSetID, &a.Title, &a.Idx, &a.OutOf, &locked); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		a.Locked = locked != 0
		assessments = append(assessments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assessments: %w", err)
	}
	return assessments, nil
}

// SeedOptions controls Seed.
type SeedOptions struct {
	ClassName   string
	MarkSetName string
	Students    int
	Assessments int
	// FillRatio is the share of cells that get a random mark.
	FillRatio float64
	// Rand drives generated marks; nil uses a time-seeded source.
	Rand *rand.Rand
}

// Seed creates a class with one mark set of the requested size.
func (r *MarkSetRepository) Seed(ctx context.Context, opts SeedOptions) (*models.MarkSet, error) {
	if opts.Students < 0 || opts.Assessments < 0 {
		return nil, fmt.Errorf("seed sizes must not be negative")
	}
	if opts.ClassName == "" {
		opts.ClassName = "Class"
	}
	if opts.MarkSetName == "" {
		opts.MarkSetName = "Term 1"
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	class := &models.Class{Name: opts.ClassName}
	if err := r.CreateClass(ctx, class); err != nil {
		return nil, err
	}
	markSet := &models.MarkSet{ClassID: class.ID, Name: opts.MarkSetName}
	if err := r.CreateMarkSet(ctx, markSet); err != nil {
		return nil, err
	}

	students := make([]*models.Student, opts.Students)
	for i := range students {
		students[i] = &models.Student{DisplayName: fmt.Sprintf("Student %03d", i+1)}
	}
	if err := r.AddStudents(ctx, class.ID, students); err != nil {
		return nil, err
	}

	assessments := make([]*models.Assessment, opts.Assessments)
	for i := range assessments {
		assessments[i] = &models.Assessment{Title: fmt.Sprintf("A%d", i+1), OutOf: 100}
	}
	if err := r.AddAssessments(ctx, markSet.ID, assessments); err != nil {
		return nil, err
	}

	if opts.FillRatio <= 0 {
		return markSet, nil
	}

	err := r.db.WriteTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for _, s := range students {
			for _, a := range assessments {
				if rng.Float64() >= opts.FillRatio {
					continue
				}
				value := float64(rng.Intn(int(a.OutOf) + 1))
				if err := upsertScore(ctx, tx, markSet.ID, s.ID, a.ID, models.Mark(value), now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return markSet, nil
}

type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func getMarkSet(ctx context.Context, q queryer, ref models.MarkSetRef) (*models.MarkSet, error) {
	var ms models.MarkSet
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, class_id, name, created_at FROM mark_sets WHERE id = ? AND class_id = ?
	`, ref.MarkSetID, ref.ClassID).Scan(&ms.ID, &ms.ClassID, &ms.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMarkSetNotFound
		}
		return nil, fmt.Errorf("failed to query mark set: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		ms.CreatedAt = t
	}
	return &ms, nil
}

func markSetDims(ctx context.Context, q queryer, ref models.MarkSetRef) (models.Dims, error) {
	if _, err := getMarkSet(ctx, q, ref); err != nil {
		return models.Dims{}, err
	}
	var dims models.Dims
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE class_id = ?`, ref.ClassID).Scan(&dims.Rows); err != nil {
		return models.Dims{}, fmt.Errorf("failed to count students: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM assessments WHERE mark_set_id = ?`, ref.MarkSetID).Scan(&dims.Cols); err != nil {
		return models.Dims{}, fmt.Errorf("failed to count assessments: %w", err)
	}
	return dims, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
