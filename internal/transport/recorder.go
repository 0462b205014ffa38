package transport

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var errInjected = errors.New("injected failure")

// Recorder is an in-memory Conn. It keeps a copy of every frame sent and can
// be told to fail. Used for dry runs and tests.
type Recorder struct {
	mu        sync.Mutex
	connected bool
	host      string
	port      int
	frames    [][]byte

	connects    int
	disconnects int
	failSends   int
	failConnect bool
	// DropOnFail disconnects after a failed send, like TCP does.
	DropOnFail bool
	// Keep bounds how many frames are retained; zero keeps everything.
	Keep int
}

func (r *Recorder) Connect(_ context.Context, host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	r.host, r.port = host, port
	if r.failConnect {
		r.connected = false
		return &IOError{Op: "connect", Addr: r.addrLocked(), Err: errInjected}
	}
	r.connected = true
	return nil
}

func (r *Recorder) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		r.disconnects++
	}
	r.connected = false
	return nil
}

func (r *Recorder) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Recorder) Send(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return &IOError{Op: "send", Err: ErrNotConnected}
	}
	if r.failSends > 0 {
		r.failSends--
		if r.DropOnFail {
			r.connected = false
		}
		return &IOError{Op: "send", Addr: r.addrLocked(), Err: errInjected}
	}
	r.frames = append(r.frames, append([]byte(nil), b...))
	if r.Keep > 0 && len(r.frames) > r.Keep {
		r.frames = r.frames[len(r.frames)-r.Keep:]
	}
	return nil
}

func (r *Recorder) addrLocked() string {
	return r.host + ":" + strconv.Itoa(r.port)
}

// FailSends makes the next n sends fail.
func (r *Recorder) FailSends(n int) {
	r.mu.Lock()
	r.failSends = n
	r.mu.Unlock()
}

// FailConnect makes connects fail until called again with false.
func (r *Recorder) FailConnect(fail bool) {
	r.mu.Lock()
	r.failConnect = fail
	r.mu.Unlock()
}

func (r *Recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func (r *Recorder) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

func (r *Recorder) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

func (r *Recorder) Target() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host, r.port
}

// WaitFrames polls until at least n frames were recorded or the timeout passes.
func (r *Recorder) WaitFrames(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		got := len(r.frames)
		r.mu.Unlock()
		if got >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
}
