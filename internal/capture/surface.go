package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ambiled/internal/sampler"
)

// Surface is an in-process Source. The renderer calls Publish each time it
// completes a frame; the lighting loop waits on it with a timeout. It holds a
// single frame: publishing before the previous one was taken replaces it, so
// the renderer never blocks on the lighting loop.
//
// A published frame belongs to the Surface until it has been handed out and
// the next Wait begins; producers must not modify it after Publish.
type Surface struct {
	mu     sync.Mutex
	handle Handle
	frame  sampler.Frame
	state  FrameState

	published  uint64
	superseded uint64

	ready chan struct{}
}

func NewSurface() *Surface {
	return &Surface{ready: make(chan struct{}, 1)}
}

func (s *Surface) Request(width, height int) (Handle, error) {
	if width <= 0 || height <= 0 {
		return Handle{}, ErrBadSize
	}
	h := Handle{ID: uuid.New(), Width: width, Height: height}

	s.mu.Lock()
	s.handle = h
	s.frame = sampler.Frame{}
	s.state = Pending
	s.mu.Unlock()
	s.drain()

	log.Debug().Str("handle", h.ID.String()).Int("width", width).Int("height", height).Msg("continuous capture requested")
	return h, nil
}

// Requested returns the active request so producers know what size to render.
func (s *Surface) Requested() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.handle.Valid()
}

// Publish completes a frame for the active request.
func (s *Surface) Publish(f sampler.Frame) error {
	s.mu.Lock()
	if !s.handle.Valid() {
		s.mu.Unlock()
		return ErrNoRequest
	}
	if s.state == Done {
		s.superseded++
	}
	s.frame = f
	s.state = Done
	s.published++
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

func (s *Surface) Wait(h Handle, timeout time.Duration) bool {
	if s.State(h) == Done {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-s.ready:
			// the signal may belong to a frame that was already taken
			if s.State(h) == Done {
				return true
			}
		case <-timer.C:
			return s.State(h) == Done
		}
	}
}

func (s *Surface) State(h Handle) FrameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID != s.handle.ID {
		return Pending
	}
	return s.state
}

func (s *Surface) Frame(h Handle) (sampler.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.Valid() || h.ID != s.handle.ID || s.state != Done {
		return sampler.Frame{}, false
	}
	f := s.frame
	s.frame = sampler.Frame{}
	s.state = Pending
	return f, true
}

func (s *Surface) Release(h Handle) {
	s.mu.Lock()
	if h.ID != s.handle.ID {
		s.mu.Unlock()
		return
	}
	s.handle = Handle{}
	s.frame = sampler.Frame{}
	s.state = Pending
	s.mu.Unlock()
	s.drain()
	log.Debug().Str("handle", h.ID.String()).Msg("capture released")
}

// Counters returns how many frames were published and how many of those were
// replaced before being taken.
func (s *Surface) Counters() (published, superseded uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.superseded
}

func (s *Surface) drain() {
	select {
	case <-s.ready:
	default:
	}
}
