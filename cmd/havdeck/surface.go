package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// Host surface: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected host clients (surface websocket)
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that converts reducer broadcasts into wire frames
//   - Inbound action frames, parsed and fed into the daemon event loop
//
// Design constraints:
//   - DeviceState stays daemon-owned; clients only ever see snapshots and
//     broadcasts that passed through the reducer.
//   - The initial state_init snapshot goes through the event loop too.
//   - Slow clients are disconnected when their send buffer fills.
//
// Wire format: JSON text frames with an envelope {type, ts, data}.
// ============================================================================

// surfaceStatusData is the `data` payload for "status" frames.
type surfaceStatusData struct {
	Conn   string `json:"conn"`
	Detail string `json:"detail,omitempty"`
}

// surfaceVariablesData is the `data` payload for "variables" frames.
type surfaceVariablesData struct {
	Time      string `json:"time"`
	Duration  string `json:"duration"`
	Remaining string `json:"remaining"`
}

// surfaceFeedbackData is the `data` payload for "feedback" frames.
type surfaceFeedbackData struct {
	Names []string `json:"names"`
}

// surfaceCatalogData is the `data` payload for "catalog" frames.
type surfaceCatalogData struct {
	Channels  []ChannelChoice `json:"channels"`
	Actions   []string        `json:"actions"`
	Feedbacks []string        `json:"feedbacks"`
}

// surfacePreviewData is the `data` payload for "preview" frames. Image is
// base64 (encoding/json's []byte default); absent when the preview cleared.
type surfacePreviewData struct {
	Present bool   `json:"present"`
	Image   []byte `json:"image,omitempty"`
}

// surfaceOutbound is a pre-typed, externally-consumable state event.
type surfaceOutbound struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for surface frames.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("surface hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("surface hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("surface client registered", "client_id", c.id, "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after unlocking.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("surface client disconnected", "client_id", c.id, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("surface hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte

	// Inbound action frames are handed to the daemon loop.
	events chan<- Event

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, events chan<- Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		id:         uuid.New(),
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// surfaceVariablesCoalesceWindow bounds how often bursty time updates are
// broadcast (latest-wins) while playback advances every second.
const surfaceVariablesCoalesceWindow = 100 * time.Millisecond

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Info("surface writePump exiting (close)", "client_id", c.id, "code", code, "reason", text)
					} else {
						c.logger.Info("surface writePump exiting (write error)", "client_id", c.id, "error", err)
					}
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Info("surface writePump exiting (ping error)", "client_id", c.id, "error", err)
				}
				return
			}
		}
	}
}

// readPump parses inbound action frames and feeds them to the daemon loop.
// It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Continue to read.
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				if code, text, ok := closeStatus(err); ok {
					c.logger.Info("surface readPump exiting (close)", "client_id", c.id, "code", code, "reason", text)
				} else {
					c.logger.Info("surface readPump exiting (read error)", "client_id", c.id, "error", err)
				}
			}

			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}

		ev, err := UnmarshalAction(data)
		if err != nil {
			c.logger.Warn("surface client sent malformed action", "client_id", c.id, "error", err)
			continue
		}

		select {
		case c.events <- ev:
		default:
			c.logger.Warn("daemon event queue full, dropping action", "client_id", c.id)
		}
	}
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot request (through the event loop)
	// and for inbound action frames.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the surface server components. Call Register on a
// mux and start hub.Run(ctx) plus the broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	hub := NewHub(logger, cfg.Hub)
	return &Server{
		logger: logger,
		hub:    hub,
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the surface handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleSurfaceWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSurfaceWS upgrades and registers a client, then sends state_init.
func (s *Server) handleSurfaceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("surface upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.events, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Do not tie the pumps to r.Context(): net/http cancels it when the
	// handler returns, which would kill the pumps immediately. Connection
	// lifetime is managed by the hub and the read/write errors.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	// Request a snapshot for the initial state_init message, routed through
	// the event loop so the view is coherent.
	reply := make(chan StateSnapshot, 1)

	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("surface snapshot request failed", "error", waitCtx.Err())
		}
		return

	case snap := <-reply:
		now := time.Now().UTC()
		initMsg, mErr := json.Marshal(envelope{
			Type: "state_init",
			Ts:   &now,
			Data: snap,
		})
		if mErr == nil {
			// Enqueue init message; if the client is already slow, disconnect.
			select {
			case client.send <- initMsg:
			default:
				s.hub.unregister <- client
				return
			}
		}
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted broadcasts, marshals them, and fans
// them out to all hub clients. Intended to run as a single goroutine.
//
// Variable updates arrive once a second per playing channel and burst during
// seeks; they are coalesced latest-wins within a short window.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pendingVars *surfaceOutbound
	var varsTimer *time.Timer
	var varsTimerCh <-chan time.Time

	emit := func(ev surfaceOutbound) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		msg, err := json.Marshal(envelope{
			Type: ev.Type,
			Ts:   &ts,
			Data: ev.Data,
		})
		if err != nil {
			logger.Warn("surface broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPendingVars := func() {
		if pendingVars == nil {
			return
		}
		emit(*pendingVars)
		pendingVars = nil
	}

	stopVarsTimer := func() {
		if varsTimer == nil {
			varsTimerCh = nil
			return
		}
		if !varsTimer.Stop() {
			select {
			case <-varsTimer.C:
			default:
			}
		}
		varsTimerCh = nil
		varsTimer = nil
	}

	startVarsTimerIfNeeded := func() {
		if varsTimer != nil {
			return
		}
		varsTimer = time.NewTimer(surfaceVariablesCoalesceWindow)
		varsTimerCh = varsTimer.C
	}

	resetVarsTimer := func() {
		if varsTimer == nil {
			return
		}
		if !varsTimer.Stop() {
			select {
			case <-varsTimer.C:
			default:
			}
		}
		varsTimer.Reset(surfaceVariablesCoalesceWindow)
		varsTimerCh = varsTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			flushPendingVars()
			stopVarsTimer()
			return

		case <-varsTimerCh:
			flushPendingVars()
			if pendingVars == nil {
				stopVarsTimer()
			} else {
				resetVarsTimer()
			}

		case b, ok := <-src:
			if !ok {
				flushPendingVars()
				stopVarsTimer()
				logger.Info("surface broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			// Rate-limit only variables; latest-wins.
			if ev.Type == "variables" {
				copyEv := ev
				pendingVars = &copyEv
				startVarsTimerIfNeeded()
				continue
			}

			// Non-variable event: flush pending variables first so ordering
			// stays sane, then emit immediately.
			flushPendingVars()
			stopVarsTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (surfaceOutbound, bool) {
	switch ev := b.(type) {
	case BroadcastStatus:
		return surfaceOutbound{
			Type: "status",
			Data: surfaceStatusData{Conn: ev.Conn.String(), Detail: ev.Detail},
			At:   ev.At,
		}, true

	case BroadcastVariables:
		return surfaceOutbound{
			Type: "variables",
			Data: surfaceVariablesData{Time: ev.Time, Duration: ev.Duration, Remaining: ev.Remaining},
			At:   ev.At,
		}, true

	case BroadcastFeedback:
		return surfaceOutbound{
			Type: "feedback",
			Data: surfaceFeedbackData{Names: ev.Names},
			At:   ev.At,
		}, true

	case BroadcastCatalog:
		return surfaceOutbound{
			Type: "catalog",
			Data: surfaceCatalogData{Channels: ev.Channels, Actions: ev.Actions, Feedbacks: ev.Feedbacks},
			At:   ev.At,
		}, true

	case BroadcastPreview:
		return surfaceOutbound{
			Type: "preview",
			Data: surfacePreviewData{Present: len(ev.Image) > 0, Image: ev.Image},
			At:   ev.At,
		}, true

	default:
		return surfaceOutbound{}, false
	}
}
