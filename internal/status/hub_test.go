package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ambiled/internal/ambilight"
	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/diagnostics"
	"github.com/coreman2200/ambiled/internal/grid"
)

type fakeController struct {
	mu       sync.Mutex
	restarts []string
}

func (f *fakeController) Stats() ambilight.Stats {
	return ambilight.Stats{State: ambilight.Running, Sent: 7, Grid: [2]int{16, 11}}
}

func (f *fakeController) OnSettingChanged(_ context.Context, name string) error {
	f.mu.Lock()
	f.restarts = append(f.restarts, name)
	f.mu.Unlock()
	return nil
}

func newTestHub(t *testing.T) (*Hub, *fakeController, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.NewStore(config.Default(), ""))
	ctl := &fakeController{}
	hub.Attach(ctl)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, ctl, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHealth(t *testing.T) {
	hub, _, srv := newTestHub(t)
	hub.Publish(diagnostics.New(diagnostics.Warn, diagnostics.CodeSendFail, "Sending to device failed"))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Loop        ambilight.Stats          `json:"loop"`
		Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ambilight.Running, body.Loop.State)
	assert.Equal(t, uint64(7), body.Loop.Sent)
	require.Len(t, body.Diagnostics, 1)
	assert.Equal(t, diagnostics.CodeSendFail, body.Diagnostics[0].Code)
}

func TestRecentDiagnosticsBounded(t *testing.T) {
	hub := NewHub(config.NewStore(config.Default(), ""))
	for i := 0; i < recentDiags+5; i++ {
		hub.Publish(diagnostics.New(diagnostics.Info, diagnostics.CodeStarted, "x"))
	}
	assert.Len(t, hub.recent, recentDiags)
}

func TestControlSocketRestartsOnce(t *testing.T) {
	hub, ctl, srv := newTestHub(t)
	conn := dial(t, srv, "/control")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"grid":{"width":10,"height":5},"port":"9000"}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply ControlReply
	require.NoError(t, json.Unmarshal(data, &reply))
	assert.ElementsMatch(t, []string{"grid", "port"}, reply.Changed)
	require.NotNil(t, reply.Loop)

	cfg := hub.store.Get()
	assert.Equal(t, config.Grid{Width: 10, Height: 5}, cfg.Grid)
	assert.Equal(t, "9000", cfg.Device.Port)

	ctl.mu.Lock()
	assert.Len(t, ctl.restarts, 1)
	ctl.mu.Unlock()

	// no change, no restart
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"port":"9000"}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &reply))
	assert.Empty(t, reply.Changed)
	ctl.mu.Lock()
	assert.Len(t, ctl.restarts, 1)
	ctl.mu.Unlock()
}

func TestDiagSocketStreams(t *testing.T) {
	hub, _, srv := newTestHub(t)
	conn := dial(t, srv, "/diag")

	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.diagClients) == 1
	}, time.Second, 5*time.Millisecond)

	hub.Publish(diagnostics.New(diagnostics.Err, diagnostics.CodeConnectFail, "Could not connect to device"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var d diagnostics.Diagnostic
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, diagnostics.CodeConnectFail, d.Code)
	assert.Equal(t, diagnostics.Err, d.Severity)
}

func TestFrameSocketStreams(t *testing.T) {
	hub, _, srv := newTestHub(t)
	conn := dial(t, srv, "/ws")

	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, time.Second, 5*time.Millisecond)

	tiles := []grid.Tile{{X: 7, Y: 0, Color: grid.RGB{R: 255}}, {X: 6, Y: 0, Color: grid.RGB{B: 9}}}
	hub.FrameSent(3, tiles)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frameJSON
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, uint64(3), f.FrameID)
	require.Len(t, f.Tiles, 2)
	assert.Equal(t, tileJSON{X: 7, Y: 0, RGB: [3]uint8{255, 0, 0}}, f.Tiles[0])
	assert.Equal(t, [3]uint8{0, 0, 9}, f.Tiles[1].RGB)
}

func TestFrameSentWithoutClients(t *testing.T) {
	hub := NewHub(config.NewStore(config.Default(), ""))
	hub.FrameSent(1, []grid.Tile{{}})
	assert.Len(t, hub.frames, 0)
}

func TestMQTTSinkOffline(t *testing.T) {
	m := NewMQTTSink(config.MQTT{Broker: "localhost:1883", Topic: "ambiled/diag/", ClientID: "test"})
	assert.Equal(t, "ambiled/diag/warning", m.Topic(diagnostics.Warn))

	m.Publish(diagnostics.New(diagnostics.Info, diagnostics.CodeStarted, "Capture loop started"))
	published, dropped := m.Counts()
	assert.Zero(t, published)
	assert.Equal(t, uint64(1), dropped)
	m.Close()
}
