package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Realtime event channel (socket.io over websocket)
// ============================================================================
// The appliance pushes state over a socket.io v2 (engine.io v3) endpoint.
// Only the websocket transport is used: a failed handshake is a hard error,
// never a silent downgrade to polling. The session token rides the handshake
// as a cookie header.
//
// Frame taxonomy (engine.io first byte, socket.io second byte):
//   "0{json}"  open (carries ping interval)
//   "1"        close
//   "2" / "3"  ping / pong
//   "40"       socket.io connect
//   "41"       socket.io disconnect
//   "42[...]"  event, optionally "42N[...]" with an ack id
//   "43N[...]" ack reply
// ============================================================================

var errServerDisconnect = errors.New("server sent disconnect")

type packetKind int

const (
	pktOpen packetKind = iota
	pktClose
	pktPing
	pktPong
	pktConnect
	pktDisconnect
	pktEvent
	pktAck
	pktNoop
)

// openPayload is the engine.io handshake body.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // milliseconds
	PingTimeout  int    `json:"pingTimeout"`  // milliseconds
}

// packet is one decoded frame.
type packet struct {
	Kind  packetKind
	Open  openPayload
	Event string
	Args  []json.RawMessage
	AckID int64 // -1 when absent
}

// decodePacket parses a single text frame.
func decodePacket(data []byte) (packet, error) {
	pkt := packet{AckID: -1}
	if len(data) == 0 {
		return pkt, errors.New("empty frame")
	}

	switch data[0] {
	case '0':
		pkt.Kind = pktOpen
		if len(data) > 1 {
			if err := json.Unmarshal(data[1:], &pkt.Open); err != nil {
				return pkt, fmt.Errorf("decode open payload: %w", err)
			}
		}
		return pkt, nil
	case '1':
		pkt.Kind = pktClose
		return pkt, nil
	case '2':
		pkt.Kind = pktPing
		return pkt, nil
	case '3':
		pkt.Kind = pktPong
		return pkt, nil
	case '6':
		pkt.Kind = pktNoop
		return pkt, nil
	case '4':
		// socket.io message
	default:
		return pkt, fmt.Errorf("unknown engine.io type %q", data[0])
	}

	if len(data) < 2 {
		return pkt, errors.New("truncated socket.io frame")
	}

	switch data[1] {
	case '0':
		pkt.Kind = pktConnect
		return pkt, nil
	case '1':
		pkt.Kind = pktDisconnect
		return pkt, nil
	case '2':
		pkt.Kind = pktEvent
	case '3':
		pkt.Kind = pktAck
	default:
		return pkt, fmt.Errorf("unknown socket.io type %q", data[1])
	}

	// Optional ack id digits before the JSON array.
	idx := 2
	ackStart := idx
	for idx < len(data) && data[idx] >= '0' && data[idx] <= '9' {
		idx++
	}
	if idx > ackStart {
		var id int64
		for _, d := range data[ackStart:idx] {
			id = id*10 + int64(d-'0')
		}
		pkt.AckID = id
	}
	if pkt.Kind == pktAck && pkt.AckID < 0 {
		return pkt, errors.New("ack frame without id")
	}

	var arr []json.RawMessage
	if idx < len(data) {
		if err := json.Unmarshal(data[idx:], &arr); err != nil {
			return pkt, fmt.Errorf("decode payload array: %w", err)
		}
	}

	if pkt.Kind == pktEvent {
		if len(arr) == 0 {
			return pkt, errors.New("event frame without name")
		}
		if err := json.Unmarshal(arr[0], &pkt.Event); err != nil {
			return pkt, fmt.Errorf("decode event name: %w", err)
		}
		pkt.Args = arr[1:]
	} else {
		pkt.Args = arr
	}

	return pkt, nil
}

// encodeEventPacket builds an outbound event frame. ackID < 0 omits the ack.
func encodeEventPacket(ackID int64, event string, args []any) ([]byte, error) {
	arr := make([]any, 0, len(args)+1)
	arr = append(arr, event)
	arr = append(arr, args...)

	body, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	var head string
	if ackID >= 0 {
		head = fmt.Sprintf("42%d", ackID)
	} else {
		head = "42"
	}
	return append([]byte(head), body...), nil
}

// parseSnapshot decodes the device_init payload:
// {player: {...}, channel: [ids...], <id>: {...fields...}}.
// Channel membership is governed entirely by the id list.
func parseSnapshot(raw json.RawMessage) (DeviceSnapshot, error) {
	snap := DeviceSnapshot{Channels: make(map[string]ChannelDelta)}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}

	if p, ok := root["player"]; ok {
		if err := json.Unmarshal(p, &snap.Player); err != nil {
			return snap, fmt.Errorf("decode snapshot player: %w", err)
		}
	}

	if cl, ok := root["channel"]; ok {
		if err := json.Unmarshal(cl, &snap.Order); err != nil {
			return snap, fmt.Errorf("decode snapshot channel list: %w", err)
		}
	}

	for _, id := range snap.Order {
		body, ok := root[id]
		if !ok {
			snap.Channels[id] = ChannelDelta{}
			continue
		}
		var d ChannelDelta
		if err := json.Unmarshal(body, &d); err != nil {
			return snap, fmt.Errorf("decode snapshot channel %q: %w", id, err)
		}
		snap.Channels[id] = d
	}

	return snap, nil
}

// ----------------------------------------------------------------------------
// Client
// ----------------------------------------------------------------------------

// SocketIOClient is the single long-lived realtime connection. Inbound
// traffic is translated into Events on the daemon's channel; deliberate
// Close never emits SocketClosed, so the reducer only ever sees unsolicited
// failures.
type SocketIOClient struct {
	conn   *websocket.Conn
	events chan<- Event
	logger *slog.Logger

	writeMu sync.Mutex

	ackMu   sync.Mutex
	acks    map[int64]func()
	nextAck int64

	closed    chan struct{}
	closeOnce sync.Once

	pingInterval time.Duration
}

// DialDeviceSocket opens the realtime channel, authenticating with the
// session token. It consumes the engine.io open packet before returning;
// the socket.io connect confirmation arrives asynchronously as a
// SocketConnected event.
func DialDeviceSocket(ctx context.Context, cfg DeviceConfig, token string, events chan<- Event, logger *slog.Logger) (*SocketIOClient, error) {
	scheme := "ws"
	if cfg.HTTPS {
		scheme = "wss"
	}
	u := fmt.Sprintf("%s://%s:%d%s?%s", scheme, cfg.Host, cfg.Port, socketIOPath, socketIOQuery)

	header := http.Header{}
	header.Set("Cookie", sessionCookie(token))

	dialer := websocket.Dialer{HandshakeTimeout: socketHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime channel: %w", err)
	}

	c := &SocketIOClient{
		conn:         conn,
		events:       events,
		logger:       logger,
		acks:         make(map[int64]func()),
		closed:       make(chan struct{}),
		pingInterval: defaultPingInterval,
	}

	// The open packet is the first frame; honor its ping interval.
	conn.SetReadDeadline(time.Now().Add(socketHandshakeTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read open packet: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	pkt, err := decodePacket(first)
	if err != nil || pkt.Kind != pktOpen {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame: %w", err)
	}
	if pkt.Open.PingInterval > 0 {
		c.pingInterval = time.Duration(pkt.Open.PingInterval) * time.Millisecond
	}

	go c.readPump()
	go c.pingLoop()

	return c, nil
}

// Close tears the connection down. Idempotent; suppresses the read error the
// teardown itself causes.
func (c *SocketIOClient) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// Emit sends a fire-and-forget command event.
func (c *SocketIOClient) Emit(event string, args ...any) error {
	frame, err := encodeEventPacket(-1, event, args)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// EmitWithAck sends a command event and registers a callback for the
// device's acknowledgment.
func (c *SocketIOClient) EmitWithAck(event string, ack func(), args ...any) error {
	c.ackMu.Lock()
	id := c.nextAck
	c.nextAck++
	c.acks[id] = ack
	c.ackMu.Unlock()

	frame, err := encodeEventPacket(id, event, args)
	if err == nil {
		err = c.write(frame)
	}
	if err != nil {
		c.ackMu.Lock()
		delete(c.acks, id)
		c.ackMu.Unlock()
		return err
	}
	return nil
}

func (c *SocketIOClient) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// emit delivers an event to the daemon unless the socket was closed
// deliberately in the meantime.
func (c *SocketIOClient) emit(ev Event) {
	select {
	case <-c.closed:
	case c.events <- ev:
	}
}

func (c *SocketIOClient) readPump() {
	defer c.conn.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				// Deliberate teardown; stay quiet.
			default:
				c.emit(SocketClosed{Err: err, At: time.Now()})
			}
			return
		}

		pkt, err := decodePacket(data)
		if err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}

		switch pkt.Kind {
		case pktPing:
			if werr := c.write([]byte("3")); werr != nil {
				c.logger.Debug("pong write failed", "error", werr)
			}

		case pktConnect:
			c.emit(SocketConnected{At: time.Now()})

		case pktClose, pktDisconnect:
			c.emit(SocketClosed{Err: errServerDisconnect, At: time.Now()})
			return

		case pktEvent:
			c.dispatchEvent(pkt)

		case pktAck:
			c.fireAck(pkt.AckID)

		default:
			// pong / noop
		}
	}
}

func (c *SocketIOClient) dispatchEvent(pkt packet) {
	now := time.Now()

	switch pkt.Event {
	case logoutEvent:
		c.emit(SessionInvalidated{At: now})

	case updateEvent:
		if len(pkt.Args) < 1 {
			c.logger.Debug("update event without scope")
			return
		}
		var scope string
		if err := json.Unmarshal(pkt.Args[0], &scope); err != nil {
			c.logger.Debug("update event with non-string scope", "error", err)
			return
		}
		var payload json.RawMessage
		if len(pkt.Args) > 1 {
			payload = pkt.Args[1]
		}
		c.emit(DeltaReceived{Scope: scope, Payload: payload, At: now})

	case snapshotEvent:
		if len(pkt.Args) < 1 {
			c.logger.Debug("snapshot event without payload")
			return
		}
		snap, err := parseSnapshot(pkt.Args[0])
		if err != nil {
			c.logger.Warn("dropping malformed snapshot", "error", err)
			return
		}
		c.emit(SnapshotReceived{Snapshot: snap, At: now})

	default:
		c.logger.Debug("ignoring unknown event", "event", pkt.Event)
	}
}

func (c *SocketIOClient) fireAck(id int64) {
	c.ackMu.Lock()
	fn := c.acks[id]
	delete(c.acks, id)
	c.ackMu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *SocketIOClient) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.write([]byte("2")); err != nil {
				// The read pump will surface the failure.
				return
			}
		}
	}
}
