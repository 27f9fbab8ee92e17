package ot

import (
	"errors"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		text string
		op   Operation
		want string
	}{
		{"insert at start", "world", Insert(0, "hello ", "u1", 1), "hello world"},
		{"insert at end", "hello", Insert(5, "!", "u1", 1), "hello!"},
		{"insert multibyte", "héllo", Insert(2, "ü", "u1", 1), "héüllo"},
		{"delete middle", "hello world", Delete(5, 6, "u1", 1), "hello"},
		{"delete nothing", "abc", Delete(1, 0, "u1", 1), "abc"},
		{"retain is a no-op", "abc", Retain(2, "u1", 1), "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.text, tt.op)
			if err != nil {
				t.Fatalf("Apply returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"insert past end", Insert(4, "x", "u1", 1)},
		{"delete past end", Delete(2, 5, "u1", 1)},
		{"negative position", Insert(-1, "x", "u1", 1)},
		{"negative length", Delete(0, -1, "u1", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply("abc", tt.op)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("expected ErrOutOfBounds, got %v", err)
			}
			if got != "abc" {
				t.Errorf("text was modified on error: %q", got)
			}
		})
	}
}

func TestApplyUnknownType(t *testing.T) {
	_, err := Apply("abc", Operation{Type: "replace"})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestApplyAllStopsOnError(t *testing.T) {
	ops := []Operation{
		Insert(0, "X", "u1", 1),
		Delete(10, 1, "u1", 2),
	}
	got, err := ApplyAll("abc", ops)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != "abc" {
		t.Errorf("expected original text on error, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		wantErr bool
	}{
		{"valid insert", Insert(0, "a", "u1", 1), false},
		{"valid delete", Delete(3, 2, "u1", 1), false},
		{"valid retain", Retain(0, "u1", 1), false},
		{"insert without content", Insert(0, "", "u1", 1), true},
		{"negative position", Delete(-2, 1, "u1", 1), true},
		{"negative length", Delete(0, -1, "u1", 1), true},
		{"missing type", Operation{Position: 1}, true},
		{"unknown type", Operation{Type: "move"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAgainst(t *testing.T) {
	if err := ValidateAgainst(Insert(3, "x", "u1", 1), "abc"); err != nil {
		t.Errorf("insert at end should be valid: %v", err)
	}
	if err := ValidateAgainst(Insert(4, "x", "u1", 1), "abc"); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if err := ValidateAgainst(Delete(1, 3, "u1", 1), "abc"); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if err := ValidateAgainst(Delete(1, 2, "u1", 1), "abc"); err != nil {
		t.Errorf("delete to end should be valid: %v", err)
	}
}
