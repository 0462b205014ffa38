// Package status exposes the running controller over HTTP: a health
// endpoint, websocket streams of sent colors and diagnostics, and a control
// socket that edits the configuration.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ambiled/internal/ambilight"
	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/diagnostics"
	"github.com/coreman2200/ambiled/internal/grid"
)

const (
	writeWait   = 200 * time.Millisecond
	recentDiags = 32
)

// Controller is the part of the capture loop the hub reports on and restarts.
type Controller interface {
	Stats() ambilight.Stats
	OnSettingChanged(ctx context.Context, name string) error
}

type Hub struct {
	store *config.Store
	start time.Time
	up    websocket.Upgrader

	mu          sync.RWMutex
	ctl         Controller
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
	recent      []diagnostics.Diagnostic

	// wmu serialises websocket writes; a conn allows one writer at a time.
	wmu    sync.Mutex
	frames chan []byte
}

func NewHub(store *config.Store) *Hub {
	return &Hub{
		store:       store,
		start:       time.Now(),
		up:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
		frames:      make(chan []byte, 1),
	}
}

// Attach sets the controller once it has been built with the hub as its
// diagnostics sink.
func (h *Hub) Attach(c Controller) {
	h.mu.Lock()
	h.ctl = c
	h.mu.Unlock()
}

func (h *Hub) controller() Controller {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctl
}

type tileJSON struct {
	X   int      `json:"x"`
	Y   int      `json:"y"`
	RGB [3]uint8 `json:"rgb"`
}

type frameJSON struct {
	T       int64      `json:"t"`
	FrameID uint64     `json:"frame_id"`
	Tiles   []tileJSON `json:"tiles"`
}

// FrameSent queues the colors of a sent frame for websocket clients. It is
// called on the capture worker so it never waits on the network; an unsent
// frame is replaced by the newer one.
func (h *Hub) FrameSent(seq uint64, tiles []grid.Tile) {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	msg := frameJSON{T: time.Now().UnixNano(), FrameID: seq, Tiles: make([]tileJSON, len(tiles))}
	for i, t := range tiles {
		msg.Tiles[i] = tileJSON{X: t.X, Y: t.Y, RGB: [3]uint8{t.Color.R, t.Color.G, t.Color.B}}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for {
		select {
		case h.frames <- b:
			return
		default:
		}
		select {
		case <-h.frames:
		default:
		}
	}
}

// Run broadcasts queued frames until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-h.frames:
			h.broadcast(h.clients, b)
		}
	}
}

// Publish implements diagnostics.Sink.
func (h *Hub) Publish(d diagnostics.Diagnostic) {
	h.mu.Lock()
	h.recent = append(h.recent, d)
	if len(h.recent) > recentDiags {
		h.recent = h.recent[len(h.recent)-recentDiags:]
	}
	h.mu.Unlock()

	b, _ := json.Marshal(d)
	h.broadcast(h.diagClients, b)
}

func (h *Hub) broadcast(set map[*websocket.Conn]bool, b []byte) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range set {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("websocket write")
		}
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime_s": time.Since(h.start).Seconds(),
	}
	if c := h.controller(); c != nil {
		resp["loop"] = c.Stats()
	}
	h.mu.RLock()
	resp["diagnostics"] = append([]diagnostics.Diagnostic(nil), h.recent...)
	h.mu.RUnlock()
	respondJSON(w, http.StatusOK, resp)
}

func (h *Hub) HandleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Get())
}

func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	h.subscribe(w, r, h.clients)
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	h.subscribe(w, r, h.diagClients)
}

// subscribe adds a websocket to set until the peer goes away.
func (h *Hub) subscribe(w http.ResponseWriter, r *http.Request, set map[*websocket.Conn]bool) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	set[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(set, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ControlMessage edits settings. Absent fields are left unchanged.
type ControlMessage struct {
	Enabled            *bool        `json:"enabled,omitempty"`
	Address            *string      `json:"address,omitempty"`
	Port               *string      `json:"port,omitempty"`
	Grid               *config.Grid `json:"grid,omitempty"`
	EagerReconnect     *bool        `json:"eagerReconnect,omitempty"`
	MinFrameIntervalMs *int         `json:"minFrameIntervalMs,omitempty"`
}

type ControlReply struct {
	Changed []string         `json:"changed"`
	Error   string           `json:"error,omitempty"`
	Loop    *ambilight.Stats `json:"loop,omitempty"`
}

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("bad control message")
			continue
		}
		reply := h.Apply(r.Context(), msg)
		b, _ := json.Marshal(reply)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// Apply stores the edits and restarts the controller once if anything changed.
func (h *Hub) Apply(ctx context.Context, msg ControlMessage) ControlReply {
	changed := h.store.Update(func(c *config.Config) {
		if msg.Enabled != nil {
			c.Device.Enabled = *msg.Enabled
		}
		if msg.Address != nil {
			c.Device.Address = *msg.Address
		}
		if msg.Port != nil {
			c.Device.Port = *msg.Port
		}
		if msg.Grid != nil {
			c.Grid = *msg.Grid
		}
		if msg.EagerReconnect != nil {
			c.Loop.EagerReconnect = *msg.EagerReconnect
		}
		if msg.MinFrameIntervalMs != nil {
			c.Loop.MinFrameIntervalMs = *msg.MinFrameIntervalMs
		}
	})
	reply := ControlReply{Changed: changed}
	ctl := h.controller()
	if ctl == nil {
		return reply
	}
	if len(changed) > 0 {
		log.Info().Strs("settings", changed).Msg("settings changed over control socket")
		if err := ctl.OnSettingChanged(ctx, changed[0]); err != nil {
			reply.Error = err.Error()
		}
	}
	s := ctl.Stats()
	reply.Loop = &s
	return reply
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("encode response")
	}
}
