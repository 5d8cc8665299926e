package models

import (
	"errors"
	"math"
	"testing"
)

func TestValidationErrorsIs(t *testing.T) {
	validation := &ValidationErrors{}
	validation.Add("value", ErrNegativeMark)

	err := validation.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNegativeMark) {
		t.Fatalf("expected errors.Is to match ErrNegativeMark, got %v", err)
	}
}

func TestValidationErrorsNestedFields(t *testing.T) {
	nested := &ValidationErrors{}
	nested.AddMessage("value", "mark is required")

	validation := &ValidationErrors{}
	validation.Add("edit", nested)

	err := validation.Err()
	if err == nil {
		t.Fatal("expected error")
	}

	list, ok := err.(*ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors type, got %T", err)
	}
	if len(list.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(list.Errors))
	}
	if list.Errors[0].Field != "edit.value" {
		t.Fatalf("expected field edit.value, got %q", list.Errors[0].Field)
	}
}

func TestValidateMark(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want error
	}{
		{name: "no mark", cell: NoMark(), want: nil},
		{name: "zero", cell: Mark(0), want: nil},
		{name: "scored", cell: Mark(17.5), want: nil},
		{name: "negative", cell: Mark(-1), want: ErrNegativeMark},
		{name: "nan", cell: Mark(math.NaN()), want: ErrInvalidMark},
		{name: "inf", cell: Mark(math.Inf(1)), want: ErrInvalidMark},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMark(tt.cell); !errors.Is(got, tt.want) {
				t.Fatalf("ValidateMark() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPendingEditValidate(t *testing.T) {
	dims := Dims{Rows: 3, Cols: 2}

	tests := []struct {
		name    string
		edit    PendingEdit
		wantErr error
	}{
		{name: "scored", edit: PendingEdit{Row: 0, Col: 0, State: EditStateScored, Value: Mark(4)}},
		{name: "zero", edit: PendingEdit{Row: 2, Col: 1, State: EditStateZero, Value: Mark(0)}},
		{name: "no mark", edit: PendingEdit{Row: 1, Col: 1, State: EditStateNoMark}},
		{name: "out of range", edit: PendingEdit{Row: 3, Col: 0, State: EditStateNoMark}, wantErr: ErrCellOutOfRange},
		{name: "zero with value", edit: PendingEdit{State: EditStateZero, Value: Mark(2)}, wantErr: ErrStateMismatch},
		{name: "no mark with value", edit: PendingEdit{State: EditStateNoMark, Value: Mark(2)}, wantErr: ErrStateMismatch},
		{name: "negative", edit: PendingEdit{State: EditStateScored, Value: Mark(-2)}, wantErr: ErrNegativeMark},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edit.Validate(dims)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCellEditValidateKind(t *testing.T) {
	dims := Dims{Rows: 1, Cols: 1}

	if err := (CellEdit{Value: NoMark(), Kind: EditKindClear}).Validate(dims); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := (CellEdit{Value: Mark(3), Kind: EditKindSet}).Validate(dims); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := (CellEdit{Value: Mark(3), Kind: EditKindClear}).Validate(dims); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
	if err := (CellEdit{Value: Mark(3), Kind: "toggle"}).Validate(dims); !errors.Is(err, ErrUnknownEditKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}
