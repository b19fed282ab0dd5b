package object

import "errors"

// Domain errors for the object package.
var (
	// ErrNoThread is returned when posting to an object that is not bound to a thread.
	ErrNoThread = errors.New("object: not bound to a thread")

	// ErrClosed is returned when posting to an object that has been closed.
	ErrClosed = errors.New("object: closed")

	// ErrThreadStopped is returned when posting to a thread that has terminated.
	ErrThreadStopped = errors.New("object: thread stopped")

	// ErrThreadNotIdle is returned by Start on a thread that was already started.
	ErrThreadNotIdle = errors.New("object: thread not idle")

	// ErrWrongThread is reported for calls made from a thread that does not
	// own the object.
	ErrWrongThread = errors.New("object: called from wrong thread")

	// ErrCancelled is returned by a blocking invocation whose message was
	// purged before delivery.
	ErrCancelled = errors.New("object: invocation cancelled")
)

// FatalError wraps an unrecoverable invariant violation. Thread loops
// recover ordinary panics from message handlers but re-panic a FatalError.
type FatalError struct {
	Err error
}

// Error implements error.
func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal panics with a *FatalError wrapping err.
func Fatal(err error) {
	panic(&FatalError{Err: err})
}
