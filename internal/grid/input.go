package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tOgg1/gradebook/internal/models"
)

// ZeroPolicy decides what a typed or pasted 0 means.
//
// Inline single-cell edits and paste treat 0 as clearing the cell. The
// toolbar "set zero" action stores an explicit zero. Both are kept as named
// policies so each path states which one it uses.
type ZeroPolicy int

const (
	// ZeroAsNoMark normalizes 0 to no mark.
	ZeroAsNoMark ZeroPolicy = iota
	// ZeroAsExplicit keeps 0 as a scored zero.
	ZeroAsExplicit
)

func (p ZeroPolicy) String() string {
	switch p {
	case ZeroAsNoMark:
		return "zero-as-no-mark"
	case ZeroAsExplicit:
		return "zero-as-explicit"
	default:
		return fmt.Sprintf("ZeroPolicy(%d)", int(p))
	}
}

// ParseMark turns user text into a cell. Blank text is no mark; text that is
// not a finite number or is negative is rejected.
func ParseMark(text string, policy ZeroPolicy) (models.Cell, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.NoMark(), nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return models.NoMark(), fmt.Errorf("%w: %q", ErrInvalidInput, text)
	}
	return NormalizeMark(v, policy)
}

// NormalizeMark applies the negativity check and the zero policy to v.
func NormalizeMark(v float64, policy ZeroPolicy) (models.Cell, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return models.NoMark(), ErrInvalidInput
	}
	if v < 0 {
		return models.NoMark(), fmt.Errorf("%w: %v", ErrNegativeMark, v)
	}
	if v == 0 {
		if policy == ZeroAsNoMark {
			return models.NoMark(), nil
		}
		return models.Mark(0), nil
	}
	return models.Mark(v), nil
}

// editKindFor is clear iff the value is no mark.
func editKindFor(c models.Cell) models.EditKind {
	if c.IsNoMark() {
		return models.EditKindClear
	}
	return models.EditKindSet
}

func pendingEdit(row, col int, c models.Cell) models.PendingEdit {
	return models.PendingEdit{Row: row, Col: col, State: models.StateForCell(c), Value: c}
}
