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
				Phase:  PhaseValue,
				Kind:   KindTypeMismatch,
				Path:   []string{"args", "count"},
				Detail: "have string, want int32",
			},
			contains: []string{"[value]", "type_mismatch", "args.count", "have string, want int32"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseUnarchive,
				Kind:  KindTruncated,
			},
			contains: []string{"[unarchive]", "truncated"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseTransport,
				Kind:   KindUnreachable,
				Detail: "peer gone",
				Cause:  errors.New("broken pipe"),
			},
			contains: []string{"[transport]", "unreachable", "peer gone", "caused by", "broken pipe"},
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
	err := &Error{
		Phase: PhaseArchive,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseTransact,
		Kind:  KindUnknownTransaction,
	}

	if !err.Is(&Error{Phase: PhaseTransact, Kind: KindUnknownTransaction}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseValue, Kind: KindUnknownTransaction}) {
		t.Error("Is should not match different phase")
	}
	if !err.Is(&Error{Kind: KindUnknownTransaction}) {
		t.Error("Is should match kind-only target")
	}
	if err.Is(&Error{Kind: KindBadArgument}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("call failed: %w", err)
	if !IsKind(wrapped, KindUnknownTransaction) {
		t.Error("IsKind should see through fmt wrapping")
	}
	if KindOf(wrapped) != KindUnknownTransaction {
		t.Errorf("KindOf = %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindFailed {
		t.Error("foreign errors should report KindFailed")
	}
	if KindOf(nil) != "" {
		t.Error("nil error has no kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseValue, KindTypeMismatch).
		Path("user", "name").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhaseValue {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseValue)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "name" {
		t.Errorf("Path = %v, want [user name]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %v, want 'expected string, got int'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"TypeMismatch", TypeMismatch(PhaseValue, "string", "int32"), KindTypeMismatch},
		{"NotFound", NotFound(PhaseValue, "key", `"a"`), KindNotFound},
		{"OutOfRange", OutOfRange(PhaseValue, 300, "int8"), KindOutOfRange},
		{"IndexOutOfRange", IndexOutOfRange(PhaseValue, 10, 5), KindOutOfRange},
		{"Unsupported", Unsupported(PhaseTransact, "weak transact"), KindUnsupported},
		{"Unreachable", Unreachable(PhaseTransact, "dead"), KindUnreachable},
		{"BadArgument", BadArgument("arg a", nil), KindBadArgument},
		{"Truncated", Truncated(PhaseUnarchive, 8, 3), KindTruncated},
		{"InvalidData", InvalidData(PhaseUnarchive, "bad flag"), KindInvalidData},
		{"Closed", Closed(PhaseTransport, "session"), KindClosed},
		{"ParseFailed", ParseFailed("signature", errors.New("x")), KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestStatusRoundTrip(t *testing.T) {
	if StatusOf(nil) != StatusOK {
		t.Fatal("nil error must map to StatusOK")
	}
	if FromStatus(StatusOK, "") != nil {
		t.Fatal("StatusOK must map to nil")
	}
	for kind := range kindStatus {
		err := FromStatus(StatusOf(&Error{Phase: PhaseTransact, Kind: kind}), "remote")
		if !IsKind(err, kind) {
			t.Errorf("kind %s did not survive status round trip: %v", kind, err)
		}
	}
	if !IsKind(FromStatus(Status(-9999), ""), KindFailed) {
		t.Error("unknown status should map to KindFailed")
	}
}

func TestFatalf(t *testing.T) {
	defer func() {
		r := recover()
		v, ok := r.(*Violation)
		if !ok {
			t.Fatalf("recovered %T, want *Violation", r)
		}
		if v.Phase != PhaseSync || !strings.Contains(v.Detail, "mutex") {
			t.Fatalf("unexpected violation %v", v)
		}
		if v.Stack == "" {
			t.Fatal("missing stack")
		}
	}()
	Fatalf(PhaseSync, "unlock of unlocked %s", "mutex")
}
