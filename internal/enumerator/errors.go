package enumerator

import "errors"

var (
	// ErrNoDirectory is returned when the device directory is missing.
	ErrNoDirectory = errors.New("enumerator: device directory not found")

	// ErrNoPatterns is returned when no node pattern is configured.
	ErrNoPatterns = errors.New("enumerator: no node patterns")

	// ErrInvalidPattern is returned for a malformed glob pattern.
	ErrInvalidPattern = errors.New("enumerator: invalid pattern")
)
