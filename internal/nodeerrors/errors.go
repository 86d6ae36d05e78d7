// Package nodeerrors defines the error taxonomy shared by every core
// subsystem: DAG consensus, mempool, execution, and storage all report
// failures through the same five kinds so callers can dispatch on Kind
// without inspecting subsystem-specific types.
package nodeerrors

import "fmt"

type Kind string

const (
	// KindInvalid covers malformed input the caller should not retry:
	// bad signatures, malformed encodings, structurally invalid blocks.
	KindInvalid Kind = "INVALID"
	// KindMissingData covers data not yet available locally (a parent
	// block, a CAS chunk, a key share) that is worth retrying.
	KindMissingData Kind = "MISSING_DATA"
	// KindIntegrity covers contradictions that must halt the affected
	// subsystem: hash mismatches, root mismatches, blue-set contradictions.
	KindIntegrity Kind = "INTEGRITY"
	// KindResourceExhaustion covers local, recoverable overload: out of
	// gas, mempool full, queue overflow.
	KindResourceExhaustion Kind = "RESOURCE_EXHAUSTION"
	// KindPolicy covers requests rejected by policy rather than by
	// data validity: access denied, reorg depth exceeded, chain-id mismatch.
	KindPolicy Kind = "POLICY"
)

// Code is a stable, subsystem-scoped tag, e.g. "GHOSTDAG_MISSING_PARENT".
// Unlike Msg it is part of the contract: callers may match on it.
type Code string

// Error is the single error type returned across package boundaries in
// this module. Detail strings are for humans; Code and Kind are for code.
type Error struct {
	Kind Kind
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s/%s", e.Kind, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, nodeerrors.Invalid(code, "")) style matching
// by Kind+Code, ignoring Msg and wrapped Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

func New(kind Kind, code Code, msg string) error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Wrap(kind Kind, code Code, msg string, err error) error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

func Invalid(code Code, msg string) error            { return New(KindInvalid, code, msg) }
func MissingData(code Code, msg string) error         { return New(KindMissingData, code, msg) }
func Integrity(code Code, msg string) error           { return New(KindIntegrity, code, msg) }
func ResourceExhaustion(code Code, msg string) error   { return New(KindResourceExhaustion, code, msg) }
func Policy(code Code, msg string) error              { return New(KindPolicy, code, msg) }

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error, otherwise "".
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}
