package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultDialTimeout  = 2 * time.Second
	DefaultWriteTimeout = 200 * time.Millisecond
)

// TCP is a Conn over a single TCP stream. A failed write closes the stream;
// nothing reconnects it implicitly.
type TCP struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	addr string
}

func NewTCP() *TCP {
	return &TCP{DialTimeout: DefaultDialTimeout, WriteTimeout: DefaultWriteTimeout}
}

func (t *TCP) Connect(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()

	d := net.Dialer{Timeout: t.DialTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &IOError{Op: "connect", Addr: addr, Err: err}
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	t.conn = c
	t.addr = addr
	log.Info().Str("addr", addr).Msg("connected to device")
	return nil
}

func (t *TCP) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *TCP) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	log.Debug().Str("addr", t.addr).Msg("disconnected from device")
	t.conn = nil
	if err != nil {
		return &IOError{Op: "disconnect", Addr: t.addr, Err: err}
	}
	return nil
}

func (t *TCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TCP) Send(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return &IOError{Op: "send", Err: ErrNotConnected}
	}
	if t.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}
	if _, err := t.conn.Write(b); err != nil {
		addr := t.addr
		_ = t.conn.Close()
		t.conn = nil
		return &IOError{Op: "send", Addr: addr, Err: err}
	}
	return nil
}

// Addr is the address of the current or last connection.
func (t *TCP) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}
