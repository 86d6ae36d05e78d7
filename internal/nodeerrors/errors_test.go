package nodeerrors

import (
	"errors"
	"testing"
)

func TestError_Formatting(t *testing.T) {
	var e *Error
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("nil receiver: %q", got)
	}

	e = &Error{Kind: KindInvalid, Code: "BAD_SIG", Msg: ""}
	if got := e.Error(); got != "INVALID/BAD_SIG" {
		t.Fatalf("empty msg: %q", got)
	}

	e = &Error{Kind: KindInvalid, Code: "BAD_SIG", Msg: "recovery byte out of range"}
	if got := e.Error(); got != "INVALID/BAD_SIG: recovery byte out of range" {
		t.Fatalf("with msg: %q", got)
	}
}

func TestNewConstructorsSetKind(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{Invalid("X", "m"), KindInvalid},
		{MissingData("X", "m"), KindMissingData},
		{Integrity("X", "m"), KindIntegrity},
		{ResourceExhaustion("X", "m"), KindResourceExhaustion},
		{Policy("X", "m"), KindPolicy},
	}
	for _, c := range cases {
		if KindOf(c.err) != c.kind {
			t.Fatalf("expected kind %s, got %s", c.kind, KindOf(c.err))
		}
	}
}

func TestIsMatchesByKindAndCode(t *testing.T) {
	err := Wrap(KindMissingData, "PARENT_MISSING", "parent not stored", errors.New("boom"))
	if !errors.Is(err, New(KindMissingData, "PARENT_MISSING", "")) {
		t.Fatalf("expected Is match on kind+code")
	}
	if errors.Is(err, New(KindMissingData, "OTHER", "")) {
		t.Fatalf("did not expect Is match on different code")
	}
	if errors.Is(err, New(KindIntegrity, "PARENT_MISSING", "")) {
		t.Fatalf("did not expect Is match on different kind")
	}
}

func TestWrapUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Wrap(KindIntegrity, "ROOT_MISMATCH", "state root mismatch", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected Unwrap chain to reach inner error")
	}
}
