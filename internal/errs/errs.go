// Package errs defines the failure kinds shared by the device client, the
// accounting store and the engines built on top of them.
//
// Callers branch on Kind, never on message text:
//
//	if errs.Is(err, errs.KindNotFound) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind is a machine-checkable failure category.
type Kind string

const (
	KindAuth              Kind = "auth"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindUnsupported       Kind = "unsupported"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindDuplicateUsername Kind = "duplicate_username"
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
)

// Error is the typed failure returned at component boundaries.
type Error struct {
	Kind Kind
	// Op names the failed operation, e.g. "accounting.CreateCredential".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
