// Package failure defines the error kinds produced while driving the native
// runtime and supervising child processes, so callers can tell a crash from
// a timeout from a logic failure.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindAssertion is an expected-condition violation inside a stub.
	KindAssertion Kind = iota + 1
	// KindNative is a native call that returned a falsy, negative or error result.
	KindNative
	// KindTimeout is an exhausted polling budget.
	KindTimeout
	// KindStall is progress that did not advance within the stall window.
	KindStall
	// KindCancelled is an operation stopped by context cancellation.
	KindCancelled
	// KindCrash is a child process that exited without delivering a result.
	KindCrash
)

var kindNames = map[Kind]string{
	KindAssertion: "assertion",
	KindNative:    "native",
	KindTimeout:   "timeout",
	KindStall:     "stall",
	KindCancelled: "cancelled",
	KindCrash:     "crash",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching. Any *Error of the same kind matches.
var (
	ErrAssertion = &Error{Kind: KindAssertion}
	ErrNative    = &Error{Kind: KindNative}
	ErrTimeout   = &Error{Kind: KindTimeout}
	ErrStall     = &Error{Kind: KindStall}
	ErrCancelled = &Error{Kind: KindCancelled}
	ErrCrash     = &Error{Kind: KindCrash}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "AnalyseTillDone".
	Op  string
	Msg string
	Err error
}

// New creates an Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap creates an Error of the given kind wrapping err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String() + " failure"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Msg != "" {
		msg += ": " + e.Msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}
