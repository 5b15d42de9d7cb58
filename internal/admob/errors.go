package admob

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/patrickwarner/admob-go/internal/payload"
)

// ErrNetwork is matched by every NetworkFailure.
var ErrNetwork = errors.New("admob network failure")

// NetworkFailure wraps a transport error, timeout or non-success status.
type NetworkFailure struct {
	Mode  payload.Mode
	Cause error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("admob: %s request failed: %v", e.Mode, e.Cause)
}

func (e *NetworkFailure) Unwrap() error {
	return e.Cause
}

func (e *NetworkFailure) Is(target error) bool {
	return target == ErrNetwork
}

// Timeout reports whether the call gave up because its deadline passed.
func (e *NetworkFailure) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Cause, &ne) && ne.Timeout()
}

// StatusError is the cause recorded for a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}
