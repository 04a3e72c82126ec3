package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Commands (side effects)
// ============================================================================
// Commands are the side effects the reducer requests. The daemon loop handles
// the timer commands itself (it owns the two single-slot timers); everything
// else goes to the effects executor, the only code that talks to the device.
// ============================================================================

// Command represents an external side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdLogin starts the single outstanding login attempt. Any previous
// in-flight attempt is cancelled first.
type CmdLogin struct {
	Attempt uuid.UUID
}

func (CmdLogin) commandMarker()   {}
func (c CmdLogin) String() string { return fmt.Sprintf("CmdLogin(attempt=%s)", c.Attempt) }

// CmdCancelLogin aborts the in-flight login attempt, if any.
type CmdCancelLogin struct{}

func (CmdCancelLogin) commandMarker() {}
func (CmdCancelLogin) String() string { return "CmdCancelLogin()" }

// CmdDeleteSession fires a best-effort DELETE of the server-side session.
// Failure is logged, never retried; local state has already moved on.
type CmdDeleteSession struct {
	Token string
}

func (CmdDeleteSession) commandMarker() {}
func (CmdDeleteSession) String() string { return "CmdDeleteSession()" }

// CmdRebootDevice puts the device into a reboot. Best-effort.
type CmdRebootDevice struct {
	Token string
}

func (CmdRebootDevice) commandMarker() {}
func (CmdRebootDevice) String() string { return "CmdRebootDevice()" }

// CmdOpenSocket opens the realtime channel with the session token. The
// executor closes any previous socket first: teardown-then-create, never two
// live connections.
type CmdOpenSocket struct {
	Token string
}

func (CmdOpenSocket) commandMarker() {}
func (CmdOpenSocket) String() string { return "CmdOpenSocket()" }

// CmdCloseSocket closes the realtime channel, if open.
type CmdCloseSocket struct{}

func (CmdCloseSocket) commandMarker() {}
func (CmdCloseSocket) String() string { return "CmdCloseSocket()" }

// CmdTogglePlay emits the play/pause toggle over the realtime channel.
type CmdTogglePlay struct{}

func (CmdTogglePlay) commandMarker() {}
func (CmdTogglePlay) String() string { return "CmdTogglePlay()" }

// CmdLoadChannel emits a load command with a resolved start time. PauseAfter
// rides the device acknowledgment: loading always resumes playback, so a
// paused recall toggles play state once the load is acked.
type CmdLoadChannel struct {
	Channel    string
	Time       float64
	PauseAfter bool
}

func (CmdLoadChannel) commandMarker() {}
func (c CmdLoadChannel) String() string {
	return fmt.Sprintf("CmdLoadChannel(channel=%s, time=%.3f, pause_after=%v)", c.Channel, c.Time, c.PauseAfter)
}

// CmdFetchImage fetches and downscales the device preview image.
type CmdFetchImage struct {
	Path string
}

func (CmdFetchImage) commandMarker()   {}
func (c CmdFetchImage) String() string { return fmt.Sprintf("CmdFetchImage(path=%s)", c.Path) }

// CmdArmRetry arms the single-slot reconnect timer. Arming cancels any
// previously pending timer first.
type CmdArmRetry struct {
	After time.Duration
}

func (CmdArmRetry) commandMarker()   {}
func (c CmdArmRetry) String() string { return fmt.Sprintf("CmdArmRetry(after=%s)", c.After) }

// CmdStopRetry cancels the pending reconnect timer, if any.
type CmdStopRetry struct{}

func (CmdStopRetry) commandMarker() {}
func (CmdStopRetry) String() string { return "CmdStopRetry()" }

// CmdArmImagePoll arms the single-slot preview poll timer.
type CmdArmImagePoll struct {
	After time.Duration
}

func (CmdArmImagePoll) commandMarker()   {}
func (c CmdArmImagePoll) String() string { return fmt.Sprintf("CmdArmImagePoll(after=%s)", c.After) }

// CmdStopImagePoll cancels the pending preview poll timer, if any.
type CmdStopImagePoll struct{}

func (CmdStopImagePoll) commandMarker() {}
func (CmdStopImagePoll) String() string { return "CmdStopImagePoll()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to the
// requester. The channel send happens in the effects layer to keep the
// reducer pure.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
