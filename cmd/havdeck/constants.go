package main

import "time"

// Device wire protocol constants.
const (
	// HTTP session API paths.
	sessionPath = "/api/session"
	rebootPath  = "/api/settings/reboot"

	// Realtime channel endpoint. The device speaks socket.io (engine.io v3)
	// over a single websocket transport; there is no polling fallback.
	socketIOPath  = "/transport/socket.io/"
	socketIOQuery = "EIO=3&transport=websocket"

	// Outbound command event names.
	togglePlayEvent  = "playback:togglePlayState"
	loadChannelEvent = "playback:loadChannel"

	// Inbound event names.
	snapshotEvent = "device_init"
	updateEvent   = "update"
	logoutEvent   = "logout"

	// Scope identifying the player block in update deltas.
	playerScope = "player"
)

// Session / reconnect timing defaults.
const (
	defaultLoginTimeoutMS   = 5000
	defaultRetryIntervalSec = 10
	defaultRebootWaitSec    = 180

	// Fallback ping cadence if the engine.io open packet carries none.
	defaultPingInterval = 25 * time.Second

	socketHandshakeTimeout = 5 * time.Second
	socketWriteTimeout     = 5 * time.Second
)

// State model constants.
const (
	// A channel counts as live while its duration keeps moving. Once the
	// device stops reporting duration changes for this long, liveness decays.
	livenessWindow = 15 * time.Second

	// Seeks never land closer than this to a channel's reported end, to
	// avoid stalling the player at end-of-stream.
	seekEndBufferSec = 25.0

	cuepointSlots = 5
)

// Preview thumbnail defaults.
const (
	defaultPreviewIntervalMS = 1000
	defaultPreviewWidth      = 72
	defaultPreviewHeight     = 48
	defaultPreviewPath       = "/api/preview/player.jpg"

	imageFetchTimeout = 5 * time.Second
)

// Host surface defaults.
const (
	defaultDevicePort  = 80
	defaultSurfacePort = 8470
	defaultIPCSocket   = "/tmp/havdeck.sock"
)
