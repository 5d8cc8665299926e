package grid

import (
	"errors"
	"fmt"
)

// Grid errors.
var (
	ErrNoContext    = errors.New("no mark set selected")
	ErrOutOfRange   = errors.New("cell is outside the grid")
	ErrInvalidInput = errors.New("mark must be a number")
	ErrNegativeMark = errors.New("negative marks are not allowed")
	ErrEmptyEdit    = errors.New("nothing to edit")
)

// EditError is a user-displayable edit failure for one cell.
type EditError struct {
	Row int
	Col int
	Err error
}

func (e *EditError) Error() string {
	return fmt.Sprintf("cell (%d, %d): %v", e.Row, e.Col, e.Err)
}

func (e *EditError) Unwrap() error {
	return e.Err
}

// FetchError is a failed tile read. The tile is eligible for retry.
type FetchError struct {
	Tile TileKey
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load tile %s: %v", e.Tile, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
