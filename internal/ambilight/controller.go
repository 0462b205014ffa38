// Package ambilight drives the LED fixture: it asks the capture source for
// frames at the grid's aspect ratio, turns each completed frame into one color
// per perimeter LED and streams those colors to the device.
package ambilight

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ambiled/internal/capture"
	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/diagnostics"
	"github.com/coreman2200/ambiled/internal/grid"
	"github.com/coreman2200/ambiled/internal/transport"
)

// State enumerates the controller lifecycle.
type State string

const (
	Idle     State = "idle"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
)

const (
	DefaultNominalWidth = 100
	DefaultWaitTimeout  = 100 * time.Millisecond
)

// Settings supplies the configuration read on every start. *config.Store
// satisfies it.
type Settings interface {
	Get() config.Config
}

// FrameFunc observes every frame that was sent. It runs on the worker and
// must not keep tiles after returning.
type FrameFunc func(seq uint64, tiles []grid.Tile)

type Deps struct {
	Source   capture.Source
	Conn     transport.Conn
	Settings Settings
	Diag     diagnostics.Sink
	OnFrame  FrameFunc
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// loopOptions are fixed for the lifetime of one worker.
type loopOptions struct {
	host             string
	port             int
	waitTimeout      time.Duration
	minFrameInterval time.Duration
	eagerReconnect   bool
}

// Controller owns the capture/transmit worker. Initialize, OnSettingChanged
// and Shutdown may be called from any goroutine.
type Controller struct {
	src      capture.Source
	conn     transport.Conn
	settings Settings
	diag     diagnostics.Sink
	onFrame  FrameFunc
	log      zerolog.Logger

	// ctrl serialises control-plane calls; mu guards the fields below it.
	ctrl sync.Mutex

	mu      sync.Mutex
	state   State
	enabled bool
	session uuid.UUID
	opts    loopOptions
	dims    [2]int
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr string

	stop  atomic.Bool
	stats counters
}

type counters struct {
	frames       atomic.Uint64
	sent         atomic.Uint64
	skipped      atomic.Uint64
	throttled    atomic.Uint64
	sendFailures atomic.Uint64
	reconnects   atomic.Uint64
	degenerate   atomic.Int64
	lastSent     atomic.Int64
}

// reset zeroes the counters. Stats cover the current session only.
func (n *counters) reset() {
	n.frames.Store(0)
	n.sent.Store(0)
	n.skipped.Store(0)
	n.throttled.Store(0)
	n.sendFailures.Store(0)
	n.reconnects.Store(0)
	n.degenerate.Store(0)
	n.lastSent.Store(0)
}

func New(d Deps, opts ...Option) *Controller {
	c := &Controller{
		src:      d.Source,
		conn:     d.Conn,
		settings: d.Settings,
		diag:     d.Diag,
		onFrame:  d.OnFrame,
		log:      log.Logger.With().Str("component", "ambilight").Logger(),
		state:    Idle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize starts the worker when enabled and not already running.
func (c *Controller) Initialize(ctx context.Context, enabled bool) error {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()
	return c.initialize(ctx, enabled)
}

// OnSettingChanged disconnects, stops the worker and starts over with the
// current settings. It is the only way new settings take effect.
func (c *Controller) OnSettingChanged(ctx context.Context, name string) error {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	c.log.Debug().Str("setting", name).Msg("handling configuration change")
	if err := c.conn.Disconnect(); err != nil {
		c.log.Debug().Err(err).Msg("disconnect")
	}
	c.shutdown()
	return c.initialize(ctx, c.settings.Get().Device.Enabled)
}

// Shutdown stops the worker and returns once it has exited, released the
// capture request and dropped the connection.
func (c *Controller) Shutdown() {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()
	c.shutdown()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Running() bool { return c.State() == Running }

func (c *Controller) initialize(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	c.enabled = enabled
	if !enabled || c.state != Idle {
		c.mu.Unlock()
		return nil
	}
	c.state = Starting
	c.mu.Unlock()

	if err := c.start(ctx); err != nil {
		c.setState(Idle)
		c.setErr(err)
		c.log.Error().Err(err).Msg("start failed")
		return err
	}
	return nil
}

func (c *Controller) start(ctx context.Context) error {
	cfg := c.settings.Get()

	// no worker is running here, so nothing else writes the counters
	c.stats.reset()
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()

	port, err := cfg.Device.PortOrDefault()
	if err != nil {
		c.log.Warn().Err(err).Int("port", port).Msg("invalid port; using default")
		d := diagnostics.New(diagnostics.Warn, diagnostics.CodePortFallback, "Invalid port, using default")
		d.Evidence = map[string]any{"configured": cfg.Device.Port, "port": port}
		c.publish(d)
	}
	opts := loopOptions{
		host:             cfg.Device.Address,
		port:             port,
		waitTimeout:      DefaultWaitTimeout,
		minFrameInterval: time.Duration(cfg.Loop.MinFrameIntervalMs) * time.Millisecond,
		eagerReconnect:   cfg.Loop.EagerReconnect,
	}
	if cfg.Capture.WaitTimeoutMs > 0 {
		opts.waitTimeout = time.Duration(cfg.Capture.WaitTimeoutMs) * time.Millisecond
	}

	g, err := grid.New(cfg.Grid.Width, cfg.Grid.Height)
	if err != nil {
		return fmt.Errorf("build grid %dx%d: %w", cfg.Grid.Width, cfg.Grid.Height, err)
	}

	nominal := cfg.Capture.NominalWidth
	if nominal <= 0 {
		nominal = DefaultNominalWidth
	}
	w, h := grid.CaptureSize(g.PreferredAspect(), nominal)
	handle, err := c.src.Request(w, h)
	if err != nil {
		return fmt.Errorf("request capture %dx%d: %w", w, h, err)
	}

	c.log.Info().Str("address", opts.host).Int("port", opts.port).Msg("connecting to device")
	if err := c.conn.Connect(ctx, opts.host, opts.port); err != nil {
		// the loop still runs; frames are skipped until a connection exists
		c.log.Warn().Err(err).Msg("connect failed")
		c.setErr(err)
		d := diagnostics.New(diagnostics.Err, diagnostics.CodeConnectFail, "Could not connect to device")
		d.Detail = err.Error()
		d.SuggestedFixes = []string{"check device address and port", "check the device is powered and listening"}
		c.publish(d)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.session = uuid.New()
	c.opts = opts
	c.dims = [2]int{g.Width(), g.Height()}
	c.cancel = cancel
	c.done = done
	c.stop.Store(false)
	c.state = Running
	session := c.session
	c.mu.Unlock()

	c.log.Info().
		Str("session", session.String()).
		Int("tiles", g.Len()).
		Int("capture_width", w).
		Int("capture_height", h).
		Msg("capture loop starting")
	d := diagnostics.New(diagnostics.Info, diagnostics.CodeStarted, "Capture loop started")
	d.Evidence = map[string]any{"session": session.String(), "grid": c.dims, "capture": [2]int{w, h}}
	c.publish(d)

	// the worker becomes the grid's only owner
	go c.run(runCtx, g, handle, opts, done)
	return nil
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.state = Stopping
	done, cancel := c.done, c.cancel
	c.mu.Unlock()

	c.stop.Store(true)
	cancel()
	<-done

	if err := c.conn.Disconnect(); err != nil {
		c.log.Debug().Err(err).Msg("disconnect")
	}

	c.mu.Lock()
	c.state = Idle
	c.done, c.cancel = nil, nil
	c.mu.Unlock()

	c.log.Info().Msg("capture loop stopped")
	c.publish(diagnostics.New(diagnostics.Info, diagnostics.CodeStopped, "Capture loop stopped"))
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

func (c *Controller) publish(d diagnostics.Diagnostic) {
	if c.diag != nil {
		c.diag.Publish(d)
	}
}

// Stats is a point-in-time view of the controller.
type Stats struct {
	Session      string    `json:"session,omitempty"`
	State        State     `json:"state"`
	Enabled      bool      `json:"enabled"`
	Address      string    `json:"address,omitempty"`
	Port         int       `json:"port,omitempty"`
	Connected    bool      `json:"connected"`
	Grid         [2]int    `json:"grid"`
	Frames       uint64    `json:"frames"`
	Sent         uint64    `json:"sent"`
	Skipped      uint64    `json:"skipped"`
	Throttled    uint64    `json:"throttled"`
	SendFailures uint64    `json:"send_failures"`
	Reconnects   uint64    `json:"reconnects"`
	Degenerate   int64     `json:"degenerate_tiles"`
	LastSent     time.Time `json:"last_sent,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		State:     c.state,
		Enabled:   c.enabled,
		Address:   c.opts.host,
		Port:      c.opts.port,
		Grid:      c.dims,
		LastError: c.lastErr,
	}
	if c.session != uuid.Nil {
		s.Session = c.session.String()
	}
	c.mu.Unlock()

	s.Connected = c.conn.Connected()
	s.Frames = c.stats.frames.Load()
	s.Sent = c.stats.sent.Load()
	s.Skipped = c.stats.skipped.Load()
	s.Throttled = c.stats.throttled.Load()
	s.SendFailures = c.stats.sendFailures.Load()
	s.Reconnects = c.stats.reconnects.Load()
	s.Degenerate = c.stats.degenerate.Load()
	if ns := c.stats.lastSent.Load(); ns != 0 {
		s.LastSent = time.Unix(0, ns)
	}
	return s
}
