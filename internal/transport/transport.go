package transport

import (
	"context"
	"errors"
	"fmt"
)

// Conn abstracts the device link.
type Conn interface {
	// Connect opens the link to host:port, dropping any previous one.
	Connect(ctx context.Context, host string, port int) error
	// Disconnect closes the link. Closing a closed link is not an error.
	Disconnect() error
	Connected() bool
	// Send writes one whole frame. Failures are returned as *IOError.
	Send(b []byte) error
}

var ErrNotConnected = errors.New("not connected")

// IOError is a transport-level failure on connect or send.
type IOError struct {
	Op   string
	Addr string
	Err  error
}

func (e *IOError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err carries an *IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
