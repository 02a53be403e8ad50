package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseParse,
				Kind:    KindForeignException,
				Path:    []string{"document", "root"},
				GoType:  "[]uint8",
				Foreign: "ParseException",
				Detail:  "unexpected EOF",
			},
			contains: []string{"[parse]", "foreign_exception", "document.root", "[]uint8", "ParseException", "unexpected EOF"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseAccess,
				Kind:  KindDisposed,
			},
			contains: []string{"[access]", "disposed"},
		},
		{
			name: "foreign only",
			err:  ForeignException(PhaseParse, "IOException", "file not found"),
			contains: []string{"[parse]", "IOException - file not found"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindAllocation,
				Detail: "heap full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "allocation", "heap full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Initialization("start heap", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := InvalidInputKind(42)

	if !errors.Is(err, ErrInvalidInputKind) {
		t.Error("Is should match sentinel of same phase and kind")
	}
	if errors.Is(err, ErrForeignParse) {
		t.Error("Is should not match different kind")
	}
	if err.Is(&Error{Phase: PhaseParse, Kind: KindInvalidInput}) {
		t.Error("Is should not match different phase")
	}

	wrapped := fmt.Errorf("parse: %w", ForeignException(PhaseParse, "ParseException", "bad"))
	if !errors.Is(wrapped, ErrForeignParse) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseParse, KindForeignException).
		Path("doc").
		GoType("string").
		Foreign("ParseException").
		Value(7).
		Cause(cause).
		Detail("line %d", 3).
		Build()

	if err.Phase != PhaseParse {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseParse)
	}
	if err.Kind != KindForeignException {
		t.Errorf("Kind = %v, want %v", err.Kind, KindForeignException)
	}
	if len(err.Path) != 1 || err.Path[0] != "doc" {
		t.Errorf("Path = %v, want [doc]", err.Path)
	}
	if err.Foreign != "ParseException" {
		t.Errorf("Foreign = %v, want ParseException", err.Foreign)
	}
	if err.Value != 7 {
		t.Errorf("Value = %v, want 7", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "line 3" {
		t.Errorf("Detail = %q, want 'line 3'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidInputKind", func(t *testing.T) {
		err := InvalidInputKind(3.5)
		if err.GoType != "float64" {
			t.Errorf("GoType = %q, want float64", err.GoType)
		}
		if err.Value != 3.5 {
			t.Errorf("Value = %v, want 3.5", err.Value)
		}
	})

	t.Run("ForeignException", func(t *testing.T) {
		err := ForeignException(PhaseParse, "SAXParseException", "unexpected EOF")
		if err.Foreign != "SAXParseException" || err.Detail != "unexpected EOF" {
			t.Errorf("got Foreign=%q Detail=%q", err.Foreign, err.Detail)
		}
		if !errors.Is(err, ErrForeignParse) {
			t.Errorf("expected %v to match ErrForeignParse", err)
		}
	})

	t.Run("ReadFailed", func(t *testing.T) {
		cause := errors.New("disk gone")
		err := ReadFailed(PhaseMarshal, cause)
		if err.Kind != KindIO || err.Unwrap() != cause {
			t.Errorf("got Kind=%v Cause=%v", err.Kind, err.Cause)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseRuntime, 1024, 8)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseRuntime, 10, 5)
		if err.Detail != "access [10, 15) out of bounds" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("AlreadyPinned", func(t *testing.T) {
		err := AlreadyPinned(9)
		if err.Kind != KindAlreadyPinned || err.Phase != PhasePin {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		err := TooLarge(PhaseMarshal, 11, 10)
		if err.Value != int64(11) {
			t.Errorf("Value = %v, want 11", err.Value)
		}
	})
}

func TestKindOf(t *testing.T) {
	if k, ok := KindOf(fmt.Errorf("x: %w", Disposed("document"))); !ok || k != KindDisposed {
		t.Errorf("KindOf = %v, %v", k, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf should not match plain errors")
	}
	if _, ok := KindOf(nil); ok {
		t.Error("KindOf(nil) should be false")
	}
}
