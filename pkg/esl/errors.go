package esl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// AuthError indicates the server rejected the supplied credential.
// It is fatal: retrying with the same credential cannot succeed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// TransportError wraps a socket-level failure. Transport errors are
// recoverable by reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("connection closed")

// IsConnectionError reports whether err indicates the underlying
// connection is gone, as opposed to a protocol- or command-level
// failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
