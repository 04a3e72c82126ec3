package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Events
// ============================================================================
// Events are the only inputs to the reducer: host actions (from the surface
// websocket, the IPC socket, or havdeck-ctl), device socket events, login
// completions, timer firings, and image fetch completions.
//
// Host actions additionally round-trip through a JSON envelope with a type
// discriminator so external clients can submit them.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// ----------------------------------------------------------------------------
// Host actions
// ----------------------------------------------------------------------------

// StartSession asks the session manager to (re)connect: any in-flight login
// or pending retry is superseded by a fresh attempt.
type StartSession struct{}

func (StartSession) eventMarker() {}

// PlayPause toggles the device play state.
type PlayPause struct{}

func (PlayPause) eventMarker() {}

// LoadChannel loads a channel, optionally at a given time. An empty Time is
// the "unspecified" sentinel: start of the channel, or the live edge if the
// channel is live.
type LoadChannel struct {
	Channel string `json:"channel"`
	Time    string `json:"time,omitempty"`
}

func (LoadChannel) eventMarker() {}

// Skip moves the seek cursor by a relative number of seconds (negative moves
// backward) on the current channel.
type Skip struct {
	Delta float64 `json:"delta"`
}

func (Skip) eventMarker() {}

// GoToTime seeks the current channel to an absolute time, given as bare
// seconds or HH:MM:SS text.
type GoToTime struct {
	Time string `json:"time"`
}

func (GoToTime) eventMarker() {}

// SetCuepoint snapshots the current channel, position, and preview image
// into a slot (1-based).
type SetCuepoint struct {
	Slot int `json:"slot"`
}

func (SetCuepoint) eventMarker() {}

// RecallCuepoint loads a saved cuepoint. PlayState "pause" forces a pause
// after the device acknowledges the load (loading always resumes playback).
type RecallCuepoint struct {
	Slot      int    `json:"slot"`
	PlayState string `json:"play_state,omitempty"` // "play" (default) or "pause"
}

func (RecallCuepoint) eventMarker() {}

// RebootDevice requests a device reboot.
type RebootDevice struct{}

func (RebootDevice) eventMarker() {}

// ----------------------------------------------------------------------------
// Session / socket events
// ----------------------------------------------------------------------------

// LoginSucceeded reports a completed login. Attempt ties it to the request;
// stale attempts (superseded or torn down) are ignored by the reducer.
type LoginSucceeded struct {
	Attempt uuid.UUID
	Token   string
	At      time.Time
}

func (LoginSucceeded) eventMarker() {}

// LoginFailed reports a failed login (non-200, timeout, network error).
type LoginFailed struct {
	Attempt uuid.UUID
	Err     error
	At      time.Time
}

func (LoginFailed) eventMarker() {}

// SocketConnected fires once the realtime channel completes its handshake.
type SocketConnected struct {
	At time.Time
}

func (SocketConnected) eventMarker() {}

// SocketClosed reports an unsolicited transport failure (dial error, read
// error, server-side disconnect frame). Deliberate closes do not emit it.
type SocketClosed struct {
	Err error
	At  time.Time
}

func (SocketClosed) eventMarker() {}

// SessionInvalidated is the server's logout push: the session is known dead,
// so reconnection starts immediately with a fresh login.
type SessionInvalidated struct {
	At time.Time
}

func (SessionInvalidated) eventMarker() {}

// SnapshotReceived carries the initial full-state payload.
type SnapshotReceived struct {
	Snapshot DeviceSnapshot
	At       time.Time
}

func (SnapshotReceived) eventMarker() {}

// DeltaReceived carries one (scope, payload) incremental update.
type DeltaReceived struct {
	Scope   string
	Payload json.RawMessage
	At      time.Time
}

func (DeltaReceived) eventMarker() {}

// LoadAcked fires when the device acknowledges a load command that carried a
// follow-up request.
type LoadAcked struct {
	PauseAfter bool
	At         time.Time
}

func (LoadAcked) eventMarker() {}

// ----------------------------------------------------------------------------
// Timer / image events
// ----------------------------------------------------------------------------

// RetryDue fires when the single-slot reconnect timer elapses.
type RetryDue struct {
	At time.Time
}

func (RetryDue) eventMarker() {}

// ImagePollDue fires when the preview poll timer elapses.
type ImagePollDue struct {
	At time.Time
}

func (ImagePollDue) eventMarker() {}

// ImageFetched carries a freshly downscaled preview thumbnail.
type ImageFetched struct {
	Data []byte
	At   time.Time
}

func (ImageFetched) eventMarker() {}

// ImageFetchFailed reports a preview fetch or decode failure; the cached
// image is cleared rather than left stale.
type ImageFetchFailed struct {
	Err error
	At  time.Time
}

func (ImageFetchFailed) eventMarker() {}

// RequestStateSnapshot asks the reducer for a coherent state snapshot,
// delivered through the effects layer so the reducer stays pure.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ConfigUpdated carries a validated runtime reconfiguration. The session is
// torn down and rebuilt with the new credentials; the daemon loop swaps its
// policy knobs before reducing it.
type ConfigUpdated struct {
	Config ReducerConfig
	At     time.Time
}

func (ConfigUpdated) eventMarker() {}

// TeardownRequested is enqueued by the daemon loop on shutdown: cancel
// timers, abort any in-flight login, close the socket, best-effort logout.
type TeardownRequested struct{}

func (TeardownRequested) eventMarker() {}

// ----------------------------------------------------------------------------
// JSON envelope for host actions
// ----------------------------------------------------------------------------

// EventEnvelope wraps a host action with a type discriminator for JSON
// transport (surface websocket frames and IPC lines).
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalAction deserializes a JSON envelope into a host action. Internal
// events are not accepted from the wire.
func UnmarshalAction(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "connect":
		return StartSession{}, nil

	case "play_pause":
		return PlayPause{}, nil

	case "load_channel":
		var a LoadChannel
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal LoadChannel: %w", err)
		}
		return a, nil

	case "skip":
		var a Skip
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal Skip: %w", err)
		}
		return a, nil

	case "go_to_time":
		var a GoToTime
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal GoToTime: %w", err)
		}
		return a, nil

	case "set_cuepoint":
		var a SetCuepoint
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetCuepoint: %w", err)
		}
		return a, nil

	case "recall_cuepoint":
		var a RecallCuepoint
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal RecallCuepoint: %w", err)
		}
		return a, nil

	case "reboot":
		return RebootDevice{}, nil

	default:
		return nil, fmt.Errorf("unknown action type: %q", env.Type)
	}
}

// MarshalAction serializes a host action into a JSON envelope.
func MarshalAction(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case StartSession:
		env.Type = "connect"

	case PlayPause:
		env.Type = "play_pause"

	case LoadChannel:
		env.Type = "load_channel"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal LoadChannel: %w", err)
		}
		env.Data = data

	case Skip:
		env.Type = "skip"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal Skip: %w", err)
		}
		env.Data = data

	case GoToTime:
		env.Type = "go_to_time"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal GoToTime: %w", err)
		}
		env.Data = data

	case SetCuepoint:
		env.Type = "set_cuepoint"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetCuepoint: %w", err)
		}
		env.Data = data

	case RecallCuepoint:
		env.Type = "recall_cuepoint"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal RecallCuepoint: %w", err)
		}
		env.Data = data

	case RebootDevice:
		env.Type = "reboot"

	default:
		return nil, fmt.Errorf("unsupported action type: %T", e)
	}

	return json.Marshal(env)
}
