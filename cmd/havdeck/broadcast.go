package main

import "time"

// ============================================================================
// State broadcasts
// ============================================================================
// Broadcasts are the reducer's host-facing outputs: connectivity status,
// variable values, feedback invalidations, the command/feedback catalog, and
// preview images. The daemon loop hands them to the surface hub, which fans
// them out to connected host clients.
// ============================================================================

// StateBroadcast is a host-facing state notification emitted by the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastStatus publishes the connectivity indicator.
type BroadcastStatus struct {
	Conn   ConnState
	Detail string
	At     time.Time
}

func (BroadcastStatus) broadcastMarker() {}

// BroadcastVariables publishes the time/duration/remaining display values as
// HH:MM:SS strings. Unknown values are empty.
type BroadcastVariables struct {
	Time      string
	Duration  string
	Remaining string
	At        time.Time
}

func (BroadcastVariables) broadcastMarker() {}

// BroadcastFeedback names the feedback predicates whose inputs changed, so
// hosts re-query only those.
type BroadcastFeedback struct {
	Names []string
	At    time.Time
}

func (BroadcastFeedback) broadcastMarker() {}

// BroadcastCatalog republishes the command and feedback catalog. Channel
// choices depend on the device snapshot, so this follows every device_init.
type BroadcastCatalog struct {
	Channels  []ChannelChoice
	Actions   []string
	Feedbacks []string
	At        time.Time
}

func (BroadcastCatalog) broadcastMarker() {}

// BroadcastPreview publishes the downscaled preview thumbnail (nil clears).
type BroadcastPreview struct {
	Image []byte
	At    time.Time
}

func (BroadcastPreview) broadcastMarker() {}

// StateSnapshot is the coherent point-in-time view delivered to a surface
// client on connect (the "state_init" message).
type StateSnapshot struct {
	Conn          string          `json:"conn"`
	Authenticated bool            `json:"authenticated"`
	Playing       bool            `json:"playing"`
	Channel       string          `json:"channel,omitempty"`
	Time          string          `json:"time"`
	Duration      string          `json:"duration"`
	Remaining     string          `json:"remaining"`
	Channels      []ChannelChoice `json:"channels"`
	Cuepoints     []bool          `json:"cuepoints"`
	HasPreview    bool            `json:"has_preview"`
	At            time.Time       `json:"at"`
}
