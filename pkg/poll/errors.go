package poll

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned before any probe runs when the Config is unusable.
	ErrInvalidConfig = errors.New("invalid poll config")
	// ErrTimeoutExceeded matches every *TimeoutExceededError.
	ErrTimeoutExceeded = errors.New("poll attempts exhausted")
	// ErrAborted matches every *AbortedError.
	ErrAborted = errors.New("poll aborted")
)

// TimeoutExceededError is returned when the probe kept reporting Pending
// until the attempt budget ran out.
type TimeoutExceededError struct {
	Attempts int
	Last     Result
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("poll attempts exhausted after %d attempts, last result %s", e.Attempts, e.Last)
}

func (e *TimeoutExceededError) Is(target error) bool {
	return target == ErrTimeoutExceeded
}

// AbortedError is returned as soon as the probe reports Failed.
type AbortedError struct {
	Reason  string
	Attempt int
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("poll aborted on attempt %d: %s", e.Attempt, e.Reason)
}

func (e *AbortedError) Is(target error) bool {
	return target == ErrAborted
}
