package device

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ambiled/internal/wire"
)

// Server accepts controller connections and hands every decoded frame to
// Renderer. Each connection is read on its own goroutine.
type Server struct {
	Renderer Renderer

	frames atomic.Uint64
	errs   atomic.Uint64
	wg     sync.WaitGroup
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then waits for open connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("device listening")
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	peer := conn.RemoteAddr().String()
	log.Info().Str("peer", peer).Msg("controller connected")
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	r := wire.NewReader(conn)
	for {
		tiles, err := r.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				log.Info().Str("peer", peer).Msg("controller disconnected")
			default:
				s.errs.Add(1)
				log.Warn().Err(err).Str("peer", peer).Msg("bad frame, dropping connection")
			}
			return
		}
		s.frames.Add(1)
		if err := s.Renderer.Show(tiles); err != nil {
			s.errs.Add(1)
			log.Warn().Err(err).Msg("render failed")
		}
	}
}

// Counts returns frames received and errors seen.
func (s *Server) Counts() (frames, errs uint64) {
	return s.frames.Load(), s.errs.Load()
}
