package focus

import "errors"

var (
	// ErrDataUnavailable means a collaborator read or write failed. The run
	// produced no suggestions and may be retried.
	ErrDataUnavailable = errors.New("focus: data unavailable")

	// ErrInvalidRange means rangeStart is after rangeEnd. It is returned
	// before any collaborator is called.
	ErrInvalidRange = errors.New("focus: invalid range")
)

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataUnavailable)
}
