package ambilight

import (
	"context"
	"time"

	"github.com/coreman2200/ambiled/internal/capture"
	"github.com/coreman2200/ambiled/internal/diagnostics"
	"github.com/coreman2200/ambiled/internal/grid"
	"github.com/coreman2200/ambiled/internal/sampler"
	"github.com/coreman2200/ambiled/internal/wire"
)

// run is the worker. Waiting for the next frame is its only blocking point
// and is bounded by waitTimeout, so the stop flag is seen promptly.
func (c *Controller) run(ctx context.Context, g *grid.Grid, h capture.Handle, o loopOptions, done chan struct{}) {
	defer close(done)
	defer c.src.Release(h)

	w := worker{c: c, g: g, o: o}
	for !c.stop.Load() {
		if !c.src.Wait(h, o.waitTimeout) {
			continue
		}
		if c.stop.Load() {
			return
		}
		f, ok := c.src.Frame(h)
		if !ok {
			continue
		}
		if !c.conn.Connected() {
			c.stats.skipped.Add(1)
			continue
		}
		if o.minFrameInterval > 0 && !w.last.IsZero() && time.Since(w.last) < o.minFrameInterval {
			c.stats.throttled.Add(1)
			continue
		}
		w.process(ctx, f)
	}
}

type worker struct {
	c    *Controller
	g    *grid.Grid
	o    loopOptions
	enc  wire.Encoder
	seq  uint64
	last time.Time

	failing    bool
	degenerate int
}

func (w *worker) process(ctx context.Context, f sampler.Frame) {
	c := w.c
	c.stats.frames.Add(1)
	w.last = time.Now()

	if w.g.MapSamples(f.Width, f.Height) {
		c.log.Info().Int("width", f.Width).Int("height", f.Height).Msg("capture resolution changed")
		d := diagnostics.New(diagnostics.Info, diagnostics.CodeResolution, "Sample rectangles recomputed")
		d.Evidence = map[string]any{"width": f.Width, "height": f.Height}
		c.publish(d)
	}

	if n := sampler.Fill(f, w.g.Tiles()); n != w.degenerate {
		w.degenerate = n
		c.stats.degenerate.Store(int64(n))
		if n > 0 {
			c.log.Warn().Int("tiles", n).Int("width", f.Width).Int("height", f.Height).Msg("tiles have empty sample rectangles; keeping previous colors")
			d := diagnostics.New(diagnostics.Warn, diagnostics.CodeDegenerate, "Some tiles have nothing to sample")
			d.Evidence = map[string]any{"tiles": n, "width": f.Width, "height": f.Height}
			d.LikelyCauses = []string{"capture resolution smaller than the LED grid"}
			c.publish(d)
		}
	}

	b := w.enc.Encode(w.g.Tiles())
	if err := c.conn.Send(b); err != nil {
		c.stats.sendFailures.Add(1)
		c.setErr(err)
		c.log.Info().Err(err).Int("bytes", len(b)).Msg("send failed")
		if !w.failing {
			d := diagnostics.New(diagnostics.Warn, diagnostics.CodeSendFail, "Sending to device failed")
			d.Detail = err.Error()
			c.publish(d)
		}
		w.failing = true
		if w.o.eagerReconnect {
			w.reconnect(ctx)
		}
		return
	}
	w.failing = false
	w.seq++
	c.stats.sent.Add(1)
	c.stats.lastSent.Store(time.Now().UnixNano())
	if c.onFrame != nil {
		c.onFrame(w.seq, w.g.Tiles())
	}
}

func (w *worker) reconnect(ctx context.Context) {
	c := w.c
	if err := c.conn.Connect(ctx, w.o.host, w.o.port); err != nil {
		c.log.Debug().Err(err).Msg("reconnect failed")
		return
	}
	c.stats.reconnects.Add(1)
	c.log.Info().Str("address", w.o.host).Int("port", w.o.port).Msg("reconnected after send failure")
	c.publish(diagnostics.New(diagnostics.Info, diagnostics.CodeReconnected, "Reconnected to device"))
}
