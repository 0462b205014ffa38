package ambilight

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ambiled/internal/capture"
	"github.com/coreman2200/ambiled/internal/capture/pattern"
	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/diagnostics"
	"github.com/coreman2200/ambiled/internal/grid"
	"github.com/coreman2200/ambiled/internal/transport"
	"github.com/coreman2200/ambiled/internal/wire"
)

type diagLog struct {
	mu    sync.Mutex
	items []diagnostics.Diagnostic
}

func (l *diagLog) Publish(d diagnostics.Diagnostic) {
	l.mu.Lock()
	l.items = append(l.items, d)
	l.mu.Unlock()
}

func (l *diagLog) has(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.items {
		if d.Code == code {
			return true
		}
	}
	return false
}

type rig struct {
	ctl     *Controller
	surface *capture.Surface
	rec     *transport.Recorder
	store   *config.Store
	diag    *diagLog
}

// newRig wires a controller to a solid red renderer and an in-memory device.
func newRig(t *testing.T, edit func(c *config.Config), rec *transport.Recorder) *rig {
	t.Helper()
	cfg := config.Default()
	cfg.Capture.WaitTimeoutMs = 10
	if edit != nil {
		edit(cfg)
	}
	if rec == nil {
		rec = &transport.Recorder{}
	}
	r := &rig{
		surface: capture.NewSurface(),
		rec:     rec,
		store:   config.NewStore(cfg, ""),
		diag:    &diagLog{},
	}
	r.ctl = New(Deps{
		Source:   r.surface,
		Conn:     r.rec,
		Settings: r.store,
		Diag:     r.diag,
	}, WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	pump := &capture.Pump{Surface: r.surface, Producer: &pattern.Solid{Color: grid.RGB{R: 255}}, FPS: 200}
	done := make(chan struct{})
	go func() {
		pump.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		r.ctl.Shutdown()
		cancel()
		<-done
	})
	return r
}

func TestSolidRedEndToEnd(t *testing.T) {
	r := newRig(t, nil, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	assert.Equal(t, Running, r.ctl.State())

	h, ok := r.surface.Requested()
	require.True(t, ok)
	assert.Equal(t, 100, h.Width)
	assert.Equal(t, 68, h.Height)

	host, port := r.rec.Target()
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, config.DefaultPort, port)

	require.True(t, r.rec.WaitFrames(1, 2*time.Second))
	b := r.rec.Frames()[0]
	require.Equal(t, 50, grid.Count(16, 11))
	require.Len(t, b, 254)
	assert.Equal(t, uint32(254), binary.BigEndian.Uint32(b))

	tiles, err := wire.Decode(b)
	require.NoError(t, err)
	require.Len(t, tiles, 50)
	// body starts with the last tile of the perimeter walk
	assert.Equal(t, wire.TileData{X: 8, Y: 0, R: 255}, tiles[0])
	assert.Equal(t, wire.TileData{X: 7, Y: 0, R: 255}, tiles[49])
	for i, td := range tiles {
		assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{td.R, td.G, td.B}, "tile %d", i)
	}
	assert.True(t, r.diag.has(diagnostics.CodeStarted))
	assert.True(t, r.diag.has(diagnostics.CodeResolution))
}

func TestDisabledDoesNothing(t *testing.T) {
	r := newRig(t, nil, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), false))
	assert.Equal(t, Idle, r.ctl.State())
	assert.Zero(t, r.rec.Connects())
	_, ok := r.surface.Requested()
	assert.False(t, ok)
}

func TestInitializeTwiceKeepsOneWorker(t *testing.T) {
	r := newRig(t, nil, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	assert.Equal(t, 1, r.rec.Connects())
}

func TestSendFailuresDoNotStopLoop(t *testing.T) {
	rec := &transport.Recorder{}
	rec.FailSends(3)
	r := newRig(t, nil, rec)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))

	require.True(t, rec.WaitFrames(2, 2*time.Second))
	s := r.ctl.Stats()
	assert.Equal(t, uint64(3), s.SendFailures)
	assert.Equal(t, Running, s.State)
	assert.NotEmpty(t, s.LastError)
	assert.True(t, r.diag.has(diagnostics.CodeSendFail))
}

func TestDroppedConnectionSkipsFrames(t *testing.T) {
	rec := &transport.Recorder{DropOnFail: true}
	rec.FailSends(1)
	r := newRig(t, nil, rec)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))

	assert.Eventually(t, func() bool { return r.ctl.Stats().Skipped > 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.Frames())
	assert.Equal(t, 1, rec.Connects())
}

func TestEagerReconnect(t *testing.T) {
	rec := &transport.Recorder{DropOnFail: true}
	rec.FailSends(1)
	r := newRig(t, func(c *config.Config) { c.Loop.EagerReconnect = true }, rec)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))

	require.True(t, rec.WaitFrames(1, 2*time.Second))
	assert.Equal(t, 2, rec.Connects())
	assert.Equal(t, uint64(1), r.ctl.Stats().Reconnects)
	assert.True(t, r.diag.has(diagnostics.CodeReconnected))
}

func TestConnectFailureKeepsRunning(t *testing.T) {
	rec := &transport.Recorder{}
	rec.FailConnect(true)
	r := newRig(t, nil, rec)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))

	assert.Equal(t, Running, r.ctl.State())
	assert.True(t, r.diag.has(diagnostics.CodeConnectFail))
	assert.Eventually(t, func() bool { return r.ctl.Stats().Skipped > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.Frames())
}

func TestInvalidPortFallsBack(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Device.Port = "http" }, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	_, port := r.rec.Target()
	assert.Equal(t, config.DefaultPort, port)
	assert.True(t, r.diag.has(diagnostics.CodePortFallback))
}

func TestBadGridFailsToStart(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Grid.Width = 1 }, nil)
	err := r.ctl.Initialize(context.Background(), true)
	assert.ErrorIs(t, err, grid.ErrDimensions)
	assert.Equal(t, Idle, r.ctl.State())
	assert.Zero(t, r.rec.Connects())
}

func TestSettingChangeRestarts(t *testing.T) {
	r := newRig(t, nil, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	require.True(t, r.rec.WaitFrames(1, 2*time.Second))
	first := r.ctl.Stats().Session

	changed := r.store.Update(func(c *config.Config) {
		c.Grid = config.Grid{Width: 10, Height: 5}
		c.Device.Port = "9000"
	})
	assert.ElementsMatch(t, []string{"grid", "port"}, changed)
	require.NoError(t, r.ctl.OnSettingChanged(context.Background(), "grid"))

	s := r.ctl.Stats()
	assert.Equal(t, Running, s.State)
	assert.NotEqual(t, first, s.Session)
	assert.Equal(t, [2]int{10, 5}, s.Grid)
	assert.Equal(t, 9000, s.Port)

	h, ok := r.surface.Requested()
	require.True(t, ok)
	assert.Equal(t, 50, h.Height)

	assert.Eventually(t, func() bool {
		frames := r.rec.Frames()
		return len(frames[len(frames)-1]) == wire.Size(grid.Count(10, 5))
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, r.rec.Disconnects(), 1)
}

func TestNewSessionResetsCounters(t *testing.T) {
	rec := &transport.Recorder{}
	rec.FailSends(3)
	r := newRig(t, nil, rec)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	require.True(t, rec.WaitFrames(2, 2*time.Second))
	before := r.ctl.Stats()
	require.Equal(t, uint64(3), before.SendFailures)
	require.NotEmpty(t, before.LastError)

	r.ctl.Shutdown()
	sentBefore := len(rec.Frames())
	require.NoError(t, r.ctl.OnSettingChanged(context.Background(), "loop"))

	after := r.ctl.Stats()
	assert.NotEqual(t, before.Session, after.Session)
	assert.Zero(t, after.SendFailures)
	assert.Empty(t, after.LastError)
	assert.LessOrEqual(t, after.Sent, uint64(len(rec.Frames())-sentBefore))
	require.True(t, rec.WaitFrames(sentBefore+1, 2*time.Second))
}

func TestSettingChangeCanDisable(t *testing.T) {
	r := newRig(t, nil, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))

	r.store.Update(func(c *config.Config) { c.Device.Enabled = false })
	require.NoError(t, r.ctl.OnSettingChanged(context.Background(), "enabled"))
	assert.Equal(t, Idle, r.ctl.State())
	assert.False(t, r.rec.Connected())
}

func TestShutdownReleasesEverything(t *testing.T) {
	r := newRig(t, nil, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))
	require.True(t, r.rec.WaitFrames(1, 2*time.Second))

	r.ctl.Shutdown()
	assert.Equal(t, Idle, r.ctl.State())
	assert.False(t, r.rec.Connected())
	_, ok := r.surface.Requested()
	assert.False(t, ok)
	assert.True(t, r.diag.has(diagnostics.CodeStopped))

	n := len(r.rec.Frames())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, r.rec.Frames(), n)

	// idempotent
	r.ctl.Shutdown()
	assert.Equal(t, Idle, r.ctl.State())
}

func TestMinFrameInterval(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Loop.MinFrameIntervalMs = 1000 }, nil)
	require.NoError(t, r.ctl.Initialize(context.Background(), true))

	require.True(t, r.rec.WaitFrames(1, 2*time.Second))
	assert.Eventually(t, func() bool { return r.ctl.Stats().Throttled > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, r.rec.Frames(), 1)
}

func TestOnFrameObservesColors(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.WaitTimeoutMs = 10
	surface := capture.NewSurface()
	rec := &transport.Recorder{}

	got := make(chan grid.RGB, 1)
	ctl := New(Deps{
		Source:   surface,
		Conn:     rec,
		Settings: config.NewStore(cfg, ""),
		OnFrame: func(seq uint64, tiles []grid.Tile) {
			select {
			case got <- tiles[0].Color:
			default:
			}
		},
	}, WithLogger(zerolog.Nop()))
	require.NoError(t, ctl.Initialize(context.Background(), true))
	defer ctl.Shutdown()

	h, ok := surface.Requested()
	require.True(t, ok)
	f, err := (&pattern.Solid{Color: grid.RGB{B: 200}}).Produce(h.Width, h.Height)
	require.NoError(t, err)
	require.NoError(t, surface.Publish(f))

	select {
	case c := <-got:
		assert.Equal(t, grid.RGB{B: 200}, c)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame observed")
	}
}
