package models

import "time"

// Class is a group of students.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MarkSet is one gradebook page of a class: its students are the rows and
// its assessments are the columns of the marks grid.
type MarkSet struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the matrix identity of the mark set.
func (m *MarkSet) Ref() MarkSetRef {
	return MarkSetRef{ClassID: m.ClassID, MarkSetID: m.ID}
}

// Student is one row of the grid.
type Student struct {
	ID          string `json:"id"`
	ClassID     string `json:"class_id"`
	DisplayName string `json:"display_name"`
	SortOrder   int    `json:"sort_order"`
}

// Assessment is one column of the grid.
type Assessment struct {
	ID        string  `json:"id"`
	MarkSetID string  `json:"mark_set_id"`
	Title     string  `json:"title"`
	Idx       int     `json:"idx"`
	OutOf     float64 `json:"out_of"`
	Locked    bool    `json:"locked"`
}
