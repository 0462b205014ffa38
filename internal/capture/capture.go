// Package capture hands rendered frames to the lighting loop.
//
// A Source is asked for continuous capture at a resolution and then polled:
// Wait blocks, bounded by a timeout, until a completed frame is ready; Frame
// lends it out for one processing pass. The consumer never keeps a frame past
// that pass.
package capture

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coreman2200/ambiled/internal/sampler"
)

type FrameState int

const (
	Pending FrameState = iota
	Done
)

func (s FrameState) String() string {
	if s == Done {
		return "done"
	}
	return "pending"
}

var (
	ErrNoRequest = errors.New("capture: no active capture request")
	ErrBadSize   = errors.New("capture: width and height must be positive")
)

// Handle identifies one continuous-capture request.
type Handle struct {
	ID            uuid.UUID
	Width, Height int
}

func (h Handle) Valid() bool { return h.ID != uuid.Nil }

type Source interface {
	Request(width, height int) (Handle, error)
	// Wait returns true once a completed frame is ready, or false on timeout.
	Wait(h Handle, timeout time.Duration) bool
	State(h Handle) FrameState
	// Frame lends out the completed frame and marks the slot pending again.
	Frame(h Handle) (sampler.Frame, bool)
	Release(h Handle)
}

// Producer renders or grabs one frame at the requested size.
type Producer interface {
	Produce(width, height int) (sampler.Frame, error)
}

type ProducerFunc func(width, height int) (sampler.Frame, error)

func (f ProducerFunc) Produce(width, height int) (sampler.Frame, error) { return f(width, height) }
