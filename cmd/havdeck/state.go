package main

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Device state store
// ============================================================================
//
// DeviceState is the single daemon-owned state container (never shared with
// other goroutines). It mirrors what the appliance has told us so far:
// the session block, the channel map, the player status, the derived
// current-channel / current-time pointers, the cuepoint slots, and the cached
// preview thumbnail.
//
// Mutation discipline:
//   - ApplySnapshot replaces the channel map and player wholesale (connect).
//   - MergePlayer / MergeChannel apply field-wise deltas and stamp derived
//     fields (LastDurationChange) when values actually move.
//   - Everything else is touched only by the reducer.
// ============================================================================

// ConnState is the connectivity indicator surfaced to hosts.
type ConnState int

const (
	ConnUnknown ConnState = iota
	ConnConnecting
	ConnOK
	ConnWarning
	ConnError
	ConnDisconnected
)

func (c ConnState) String() string {
	switch c {
	case ConnConnecting:
		return "connecting"
	case ConnOK:
		return "ok"
	case ConnWarning:
		return "warning"
	case ConnError:
		return "error"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SessionState tracks the login/session lifecycle.
type SessionState struct {
	// Token is the opaque sessionID returned by login. Empty means no
	// session; it is cleared the instant a teardown is decided, without
	// waiting for the server to acknowledge.
	Token string

	// Attempt identifies the single outstanding login attempt, if any.
	// Completions carrying a different id are stale and ignored.
	Attempt uuid.UUID

	Conn ConnState

	// RetryPending mirrors the armed state of the single-slot reconnect
	// timer; while true no second timer may be armed.
	RetryPending bool

	// Rebooting marks the long post-reboot wait window.
	Rebooting bool
}

// Channel is one playback channel as reported by the device.
type Channel struct {
	ID       string
	Name     string
	Duration float64

	// Broken is the device-reported error flag; broken channels are not
	// loadable.
	Broken bool

	// Cloud is the streaming upload progress, when the device reports one.
	Cloud      float64
	CloudKnown bool

	// LastDurationChange is stamped whenever a merge moves Duration. It is
	// the sole liveness signal: a channel is live only while this is fresh.
	LastDurationChange time.Time

	// Extra retains device fields this build does not model, so merges
	// never silently drop data the device sent.
	Extra map[string]json.RawMessage
}

// PlayerStatus is the single player record, replaced field-wise by deltas.
type PlayerStatus struct {
	Playing bool
	Time    float64
	Channel string // active channel id
	Image   string // device-reported preview image path
}

// Cuepoint is a saved position: channel + time + optional snapshot image.
// Slots are memory-only; they do not survive a restart.
type Cuepoint struct {
	Channel string
	Time    float64
	Image   []byte
	Set     bool
}

// DeviceState is the daemon-owned state container.
type DeviceState struct {
	Session SessionState

	Channels map[string]*Channel

	// ChannelOrder preserves the device's channel list ordering from the
	// last snapshot, for host-facing catalogs.
	ChannelOrder []string

	Player PlayerStatus

	// CurrentChannel is the last active channel id seen (or optimistically
	// set by a load command). CurrentTime is the seek cursor: nil until the
	// first player time arrives.
	CurrentChannel string
	CurrentTime    *float64

	Cuepoints [cuepointSlots]Cuepoint

	// Preview is the cached, already-downscaled thumbnail bytes.
	Preview []byte
}

// NewDeviceState returns an empty state with an initialized channel map.
func NewDeviceState() *DeviceState {
	return &DeviceState{
		Channels: make(map[string]*Channel),
	}
}

// IsLive reports whether a channel is currently receiving new content.
// Liveness is derived, not stored: the duration must have moved within the
// freshness window. A channel that never saw a duration change is never live.
func (s *DeviceState) IsLive(id string, now time.Time) bool {
	ch, ok := s.Channels[id]
	if !ok {
		return false
	}
	if ch.LastDurationChange.IsZero() {
		return false
	}
	return now.Sub(ch.LastDurationChange) <= livenessWindow
}

// activePosition returns the current channel and seek cursor, and whether
// both are known. Commands with a "currently active" precondition (skip,
// set cuepoint) require this.
func (s *DeviceState) activePosition() (string, float64, bool) {
	if s.CurrentChannel == "" || s.CurrentTime == nil {
		return "", 0, false
	}
	return s.CurrentChannel, *s.CurrentTime, true
}

// ============================================================================
// Deltas and merges
// ============================================================================

// PlayerDelta is a partial player update. Pointer fields distinguish
// "absent" from zero values.
type PlayerDelta struct {
	Playing *bool    `json:"playing"`
	Time    *float64 `json:"time"`
	Channel *string  `json:"channel"`
	Image   *string  `json:"image"`
}

// ChannelDelta is a partial channel update. Unknown fields land in Extra.
type ChannelDelta struct {
	Name     *string
	Duration *float64
	Error    *bool
	Cloud    *float64
	Extra    map[string]json.RawMessage
}

func (d *ChannelDelta) UnmarshalJSON(b []byte) error {
	type wire struct {
		Name     *string  `json:"name"`
		Duration *float64 `json:"duration"`
		Error    *bool    `json:"error"`
		Cloud    *float64 `json:"cloud"`
	}
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range []string{"name", "duration", "error", "cloud"} {
		delete(all, k)
	}
	d.Name = w.Name
	d.Duration = w.Duration
	d.Error = w.Error
	d.Cloud = w.Cloud
	if len(all) > 0 {
		d.Extra = all
	} else {
		d.Extra = nil
	}
	return nil
}

// playerMergeReport tells the reducer which derived concerns a player merge
// touched, so it can re-check feedback and republish variables.
type playerMergeReport struct {
	TimeSeen    bool
	ChannelSeen bool
	PlayingSeen bool
}

// channelMergeReport is the channel-side equivalent.
type channelMergeReport struct {
	DurationChanged bool
	CloudSeen       bool
}

// MergePlayer applies a partial player update. Present fields overwrite; the
// derived current-channel / current-time pointers follow along.
func (s *DeviceState) MergePlayer(d PlayerDelta, now time.Time) playerMergeReport {
	var rep playerMergeReport

	if d.Playing != nil {
		s.Player.Playing = *d.Playing
		rep.PlayingSeen = true
	}
	if d.Time != nil {
		s.Player.Time = *d.Time
		t := *d.Time
		s.CurrentTime = &t
		rep.TimeSeen = true
	}
	if d.Channel != nil {
		s.Player.Channel = *d.Channel
		s.CurrentChannel = *d.Channel
		rep.ChannelSeen = true
	}
	if d.Image != nil {
		s.Player.Image = *d.Image
	}

	return rep
}

// MergeChannel applies a partial channel update to an existing entry. It
// stamps LastDurationChange only when the duration actually moves; that stamp
// is what drives the liveness decay. Merging an unknown id is a no-op.
func (s *DeviceState) MergeChannel(id string, d ChannelDelta, now time.Time) (channelMergeReport, bool) {
	var rep channelMergeReport

	ch, ok := s.Channels[id]
	if !ok {
		return rep, false
	}

	if d.Name != nil {
		ch.Name = *d.Name
	}
	if d.Duration != nil && *d.Duration != ch.Duration {
		ch.Duration = *d.Duration
		ch.LastDurationChange = now
		rep.DurationChanged = true
	}
	if d.Error != nil {
		ch.Broken = *d.Error
	}
	if d.Cloud != nil {
		ch.Cloud = *d.Cloud
		ch.CloudKnown = true
		rep.CloudSeen = true
	}
	if len(d.Extra) > 0 {
		if ch.Extra == nil {
			ch.Extra = make(map[string]json.RawMessage, len(d.Extra))
		}
		for k, v := range d.Extra {
			ch.Extra[k] = v
		}
	}

	return rep, true
}

// DeviceSnapshot is the parsed initial full-state payload the device pushes
// once after the realtime channel connects.
type DeviceSnapshot struct {
	Player   PlayerDelta
	Channels map[string]ChannelDelta

	// Order preserves the device's channel list ordering for catalogs.
	Order []string
}

// ApplySnapshot replaces the channel map and player wholesale. Channels are
// created fresh, so the snapshot never marks anything live: liveness needs a
// subsequent duration change. Cuepoints and the preview cache are local and
// survive the replacement.
func (s *DeviceState) ApplySnapshot(snap DeviceSnapshot, now time.Time) {
	channels := make(map[string]*Channel, len(snap.Channels))
	for id, d := range snap.Channels {
		ch := &Channel{ID: id}
		if d.Name != nil {
			ch.Name = *d.Name
		}
		if d.Duration != nil {
			ch.Duration = *d.Duration
		}
		if d.Error != nil {
			ch.Broken = *d.Error
		}
		if d.Cloud != nil {
			ch.Cloud = *d.Cloud
			ch.CloudKnown = true
		}
		if len(d.Extra) > 0 {
			ch.Extra = d.Extra
		}
		channels[id] = ch
	}
	s.Channels = channels
	s.ChannelOrder = append([]string(nil), snap.Order...)

	s.Player = PlayerStatus{}
	s.CurrentChannel = ""
	s.CurrentTime = nil
	s.MergePlayer(snap.Player, now)
}

// channelChoices returns the catalog entries for the current channel map in
// snapshot order (fallback: sorted by id for channels missing from Order).
func (s *DeviceState) channelChoices(order []string) []ChannelChoice {
	seen := make(map[string]bool, len(s.Channels))
	choices := make([]ChannelChoice, 0, len(s.Channels))

	add := func(id string) {
		ch, ok := s.Channels[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		label := ch.Name
		if label == "" {
			label = id
		}
		choices = append(choices, ChannelChoice{ID: id, Label: label})
	}

	for _, id := range order {
		add(id)
	}

	rest := make([]string, 0, len(s.Channels))
	for id := range s.Channels {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		add(id)
	}

	return choices
}

// ChannelChoice is one entry of the host-facing channel dropdown.
type ChannelChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
