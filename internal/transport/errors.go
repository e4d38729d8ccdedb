package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrConnectionLost is returned by in-flight calls when the session dies
// underneath them, and by Call on a session that is already closed.
var ErrConnectionLost = errors.New("connection lost")

// ConnectError wraps a failure to establish the transport: refusal,
// DNS failure, or dial timeout.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError is returned when a call's local wait exceeds its deadline.
// The pending waiter is deregistered; a late response is discarded.
type TimeoutError struct {
	Method  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call %s timed out after %s", e.Method, e.Elapsed)
}

// RemoteError carries an error-shaped response payload from the browser.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
