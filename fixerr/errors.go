// Package fixerr defines the error taxonomy shared across the engine's
// packages (codec, store, transport, session). Every kind from spec §7
// maps to one Kind constant; callers branch on Kind via errors.As, not on
// error strings.
package fixerr

import "fmt"

// Kind classifies an Error. The zero value is never produced by this
// package.
type Kind string

const (
	KindParse     Kind = "parse"
	KindSession   Kind = "session"
	KindConfig    Kind = "config"
	KindTransport Kind = "transport"
	KindStore     Kind = "store"
	KindIO        Kind = "io"
)

// Error wraps an underlying cause with a Kind so callers can recover the
// taxonomy with errors.As after the error has crossed package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, letting
// callers write errors.Is(err, fixerr.Parse) style checks against the
// sentinel-like values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Cause != nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values usable with errors.Is(err, fixerr.Parse) to test Kind
// without unwrapping manually.
var (
	Parse     = &Error{Kind: KindParse}
	Session   = &Error{Kind: KindSession}
	Config    = &Error{Kind: KindConfig}
	Transport = &Error{Kind: KindTransport}
	Store     = &Error{Kind: KindStore}
	IO        = &Error{Kind: KindIO}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ParseErr(message string) *Error     { return New(KindParse, message) }
func SessionErr(message string) *Error   { return New(KindSession, message) }
func ConfigErr(message string) *Error    { return New(KindConfig, message) }
func TransportErr(message string) *Error { return New(KindTransport, message) }
func StoreErr(message string) *Error     { return New(KindStore, message) }
