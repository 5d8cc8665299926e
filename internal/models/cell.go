// Package models defines the value types shared by the grid coordinator,
// the backend store and the CLI.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Cell is one mark in the grid. The zero value is "no mark", which is
// distinct from a scored zero.
type Cell struct {
	value float64
	set   bool
}

// Mark returns a cell holding v.
func Mark(v float64) Cell {
	return Cell{value: v, set: true}
}

// NoMark returns the absent-score cell.
func NoMark() Cell {
	return Cell{}
}

// CellFromPtr converts a nullable float into a cell.
func CellFromPtr(v *float64) Cell {
	if v == nil {
		return NoMark()
	}
	return Mark(*v)
}

// Value returns the mark and whether one is present.
func (c Cell) Value() (float64, bool) {
	return c.value, c.set
}

// IsNoMark reports whether the cell is empty.
func (c Cell) IsNoMark() bool {
	return !c.set
}

// Ptr returns the mark as a nullable float.
func (c Cell) Ptr() *float64 {
	if !c.set {
		return nil
	}
	v := c.value
	return &v
}

// String renders the mark; no mark renders as an empty string.
func (c Cell) String() string {
	if !c.set {
		return ""
	}
	return strconv.FormatFloat(c.value, 'f', -1, 64)
}

// MarshalJSON encodes no mark as null.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.value)
}

// UnmarshalJSON accepts null or a number.
func (c *Cell) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = NoMark()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid cell value: %w", err)
	}
	*c = Mark(v)
	return nil
}

// EditState disambiguates no mark, an explicit zero and a scored value
// independently of the value's nullability.
type EditState string

const (
	EditStateScored EditState = "scored"
	EditStateZero   EditState = "zero"
	EditStateNoMark EditState = "no_mark"
)

// EditKind is the single-cell write verb.
type EditKind string

const (
	EditKindSet   EditKind = "set"
	EditKindClear EditKind = "clear"
)

// StateForCell derives the edit state that stores c as-is.
func StateForCell(c Cell) EditState {
	v, ok := c.Value()
	switch {
	case !ok:
		return EditStateNoMark
	case v == 0:
		return EditStateZero
	default:
		return EditStateScored
	}
}
