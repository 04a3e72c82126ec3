package main

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Reducer
// ============================================================================
// Reduce computes next state + commands + broadcasts from a single event,
// without performing I/O. It owns:
//
//   - the session lifecycle state machine
//     (disconnected -> connecting(login) -> connecting(socket) -> connected,
//     with a rebooting sub-state that forces the long retry wait)
//   - delta routing and the merge-driven feedback/variable invalidations
//   - command dispatch validation and the seek-time policy
//   - cuepoint bookkeeping
//
// The daemon loop executes the Commands (timers itself, everything else via
// the effects executor), logs the Notices, and fans out the Broadcasts.
// ============================================================================

// ReducerConfig carries the policy knobs the reducer needs.
type ReducerConfig struct {
	// AutoRetry re-arms the reconnect timer after connectivity failures.
	AutoRetry bool

	// RetryInterval is the fixed wait after an unsolicited disconnect or a
	// failed login. RebootWait is the longer wait after a requested reboot,
	// sized to the device's typical reboot duration.
	RetryInterval time.Duration
	RebootWait    time.Duration

	// PreviewEnabled gates all image fetching; PreviewInterval is the poll
	// cadence while the player is playing.
	PreviewEnabled  bool
	PreviewInterval time.Duration

	// DefaultPreviewPath is used when the player has not reported one.
	DefaultPreviewPath string
}

// Notice is a log line the reducer wants emitted. The reducer itself never
// logs; the daemon loop does.
type Notice struct {
	Level   slog.Level
	Message string
	Args    []any
}

// ReduceResult is the output of Reduce().
type ReduceResult struct {
	State      *DeviceState
	Commands   []Command
	Broadcasts []StateBroadcast
	Notices    []Notice
}

// Reduce is the pure reducer. now is the reducer's only clock; the daemon
// loop passes wall time, tests pass simulated time.
func Reduce(s *DeviceState, e Event, cfg ReducerConfig, now time.Time) ReduceResult {
	if s == nil {
		s = NewDeviceState()
	}

	r := &reduction{state: s, cfg: cfg, now: now}

	switch ev := e.(type) {

	// ------------------------------------------------------------------
	// Session lifecycle
	// ------------------------------------------------------------------

	case StartSession:
		r.beginLogin("connect requested")

	case LoginSucceeded:
		if s.Session.Attempt == uuid.Nil || ev.Attempt != s.Session.Attempt {
			r.notice(slog.LevelDebug, "ignoring stale login result")
			break
		}
		s.Session.Attempt = uuid.Nil
		s.Session.Token = ev.Token
		s.Session.Rebooting = false
		r.cmd(CmdOpenSocket{Token: ev.Token})
		r.notice(slog.LevelInfo, "logged in, opening realtime channel")

	case LoginFailed:
		if s.Session.Attempt == uuid.Nil || ev.Attempt != s.Session.Attempt {
			r.notice(slog.LevelDebug, "ignoring stale login failure")
			break
		}
		s.Session.Attempt = uuid.Nil
		s.Session.Conn = ConnError
		r.status("login failed")
		r.notice(slog.LevelWarn, "login failed", "error", ev.Err)
		r.scheduleRetry(cfg.RetryInterval)

	case SocketConnected:
		s.Session.Conn = ConnOK
		r.status("connected")
		r.notice(slog.LevelInfo, "realtime channel connected")

	case SocketClosed:
		if s.Session.Conn == ConnDisconnected {
			break
		}
		s.Session.Token = ""
		s.Session.Conn = ConnError
		r.cmd(CmdCloseSocket{})
		r.cmd(CmdStopImagePoll{})
		r.status("connection lost")
		r.notice(slog.LevelWarn, "realtime channel lost", "error", ev.Err)
		r.scheduleRetry(cfg.RetryInterval)

	case SessionInvalidated:
		// The session is known dead; no point waiting out a retry interval.
		s.Session.Token = ""
		r.cmd(CmdCloseSocket{})
		r.cmd(CmdStopImagePoll{})
		r.notice(slog.LevelWarn, "session invalidated by device, re-logging in")
		r.beginLogin("session invalidated")

	case RetryDue:
		s.Session.RetryPending = false
		s.Session.Rebooting = false
		if s.Session.Conn == ConnOK && s.Session.Token != "" {
			break
		}
		r.beginLogin("retry")

	case RebootDevice:
		if s.Session.Conn != ConnOK || s.Session.Token == "" {
			r.notice(slog.LevelWarn, "reboot refused: not connected")
			break
		}
		r.cmd(CmdRebootDevice{Token: s.Session.Token})
		r.cmd(CmdCloseSocket{})
		r.cmd(CmdStopImagePoll{})
		r.cmd(CmdCancelLogin{})
		s.Session.Token = ""
		s.Session.Attempt = uuid.Nil
		s.Session.Rebooting = true
		s.Session.Conn = ConnWarning
		r.status("rebooting")
		r.notice(slog.LevelInfo, "device reboot requested", "retry_in", cfg.RebootWait)
		r.scheduleRetry(cfg.RebootWait)

	case ConfigUpdated:
		// New credentials supersede everything in flight.
		r.cmd(CmdStopImagePoll{})
		r.cmd(CmdCloseSocket{})
		if s.Session.Token != "" {
			r.cmd(CmdDeleteSession{Token: s.Session.Token})
		}
		s.Session.Token = ""
		s.Session.Rebooting = false
		r.notice(slog.LevelInfo, "configuration updated, reconnecting")
		r.beginLogin("configuration updated")

	case TeardownRequested:
		r.cmd(CmdStopRetry{})
		r.cmd(CmdStopImagePoll{})
		r.cmd(CmdCancelLogin{})
		r.cmd(CmdCloseSocket{})
		if s.Session.Token != "" {
			r.cmd(CmdDeleteSession{Token: s.Session.Token})
		}
		s.Session.Token = ""
		s.Session.Attempt = uuid.Nil
		s.Session.RetryPending = false
		s.Session.Conn = ConnDisconnected
		r.status("stopped")

	// ------------------------------------------------------------------
	// Inbound device state
	// ------------------------------------------------------------------

	case SnapshotReceived:
		s.ApplySnapshot(ev.Snapshot, now)
		r.broadcast(BroadcastCatalog{
			Channels:  s.channelChoices(s.ChannelOrder),
			Actions:   allActionNames(),
			Feedbacks: allFeedbackNames(),
			At:        now,
		})
		r.variables()
		r.feedback(allFeedbackNames()...)
		if cfg.PreviewEnabled {
			r.cmd(CmdFetchImage{Path: r.previewPath()})
			if s.Player.Playing {
				r.cmd(CmdArmImagePoll{After: cfg.PreviewInterval})
			}
		}

	case DeltaReceived:
		r.reduceDelta(ev)

	case LoadAcked:
		if ev.PauseAfter && s.Session.Conn == ConnOK {
			r.cmd(CmdTogglePlay{})
		}

	// ------------------------------------------------------------------
	// Host commands
	// ------------------------------------------------------------------

	case PlayPause:
		if s.Session.Conn != ConnOK {
			r.notice(slog.LevelWarn, "play/pause ignored: not connected")
			break
		}
		r.cmd(CmdTogglePlay{})

	case LoadChannel:
		requested, err := ParseTimecode(ev.Time)
		if err != nil {
			r.notice(slog.LevelWarn, "load rejected", "error", err)
			break
		}
		r.load(ev.Channel, requested, false)

	case Skip:
		id, pos, ok := s.activePosition()
		if !ok {
			r.notice(slog.LevelWarn, "skip ignored: no channel loaded")
			break
		}
		target := pos + ev.Delta
		r.load(id, &target, false)

	case GoToTime:
		if s.CurrentChannel == "" {
			r.notice(slog.LevelWarn, "go-to-time ignored: no channel loaded")
			break
		}
		requested, err := ParseTimecode(ev.Time)
		if err != nil {
			r.notice(slog.LevelWarn, "go-to-time rejected", "error", err)
			break
		}
		r.load(s.CurrentChannel, requested, false)

	case SetCuepoint:
		if ev.Slot < 1 || ev.Slot > cuepointSlots {
			r.notice(slog.LevelWarn, "cuepoint slot out of range", "slot", ev.Slot)
			break
		}
		id, pos, ok := s.activePosition()
		if !ok {
			r.notice(slog.LevelWarn, "set cuepoint ignored: no channel loaded")
			break
		}
		s.Cuepoints[ev.Slot-1] = Cuepoint{
			Channel: id,
			Time:    pos,
			Image:   append([]byte(nil), s.Preview...),
			Set:     true,
		}
		r.feedback(FeedbackCuepoint)
		r.notice(slog.LevelInfo, "cuepoint stored", "slot", ev.Slot, "channel", id, "time", FormatTimecode(pos))

	case RecallCuepoint:
		if ev.Slot < 1 || ev.Slot > cuepointSlots {
			r.notice(slog.LevelWarn, "cuepoint slot out of range", "slot", ev.Slot)
			break
		}
		cp := s.Cuepoints[ev.Slot-1]
		if !cp.Set {
			r.notice(slog.LevelInfo, "cuepoint recall ignored: slot empty", "slot", ev.Slot)
			break
		}
		t := cp.Time
		r.load(cp.Channel, &t, ev.PlayState == "pause")

	// ------------------------------------------------------------------
	// Preview images
	// ------------------------------------------------------------------

	case ImagePollDue:
		// Re-arm only while playing; once playback stops the poll decays.
		if cfg.PreviewEnabled && s.Player.Playing && s.Session.Conn == ConnOK {
			r.cmd(CmdFetchImage{Path: r.previewPath()})
			r.cmd(CmdArmImagePoll{After: cfg.PreviewInterval})
		}

	case ImageFetched:
		s.Preview = ev.Data
		r.feedback(FeedbackPreview)
		r.broadcast(BroadcastPreview{Image: ev.Data, At: now})

	case ImageFetchFailed:
		// Never keep stale data.
		s.Preview = nil
		r.feedback(FeedbackPreview)
		r.broadcast(BroadcastPreview{At: now})
		r.notice(slog.LevelWarn, "preview fetch failed", "error", ev.Err)

	case RequestStateSnapshot:
		r.cmd(CmdPublishStateSnapshot{Snapshot: snapshotOf(s, now), Reply: ev.Reply})

	default:
		// Unknown event type: no-op (forward compatibility).
	}

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcasts,
		Notices:    r.notices,
	}
}

// reduction accumulates the outputs of one Reduce call.
type reduction struct {
	state *DeviceState
	cfg   ReducerConfig
	now   time.Time

	cmds    []Command
	bcasts  []StateBroadcast
	notices []Notice
}

func (r *reduction) cmd(c Command)              { r.cmds = append(r.cmds, c) }
func (r *reduction) broadcast(b StateBroadcast) { r.bcasts = append(r.bcasts, b) }

func (r *reduction) feedback(names ...string) {
	r.bcasts = append(r.bcasts, BroadcastFeedback{Names: names, At: r.now})
}

func (r *reduction) notice(level slog.Level, msg string, args ...any) {
	r.notices = append(r.notices, Notice{Level: level, Message: msg, Args: args})
}

func (r *reduction) status(detail string) {
	r.broadcast(BroadcastStatus{Conn: r.state.Session.Conn, Detail: detail, At: r.now})
}

func (r *reduction) variables() {
	r.broadcast(variablesBroadcast(r.state, r.now))
}

func (r *reduction) previewPath() string {
	if r.state.Player.Image != "" {
		return r.state.Player.Image
	}
	return r.cfg.DefaultPreviewPath
}

// beginLogin supersedes any in-flight login and pending retry with a fresh
// attempt. At most one outstanding attempt exists at any time.
func (r *reduction) beginLogin(reason string) {
	s := r.state
	r.cmd(CmdStopRetry{})
	r.cmd(CmdCancelLogin{})
	s.Session.RetryPending = false
	s.Session.Attempt = uuid.New()
	s.Session.Conn = ConnConnecting
	r.cmd(CmdLogin{Attempt: s.Session.Attempt})
	r.status(reason)
}

// scheduleRetry arms the reconnect timer unless one is already pending.
func (r *reduction) scheduleRetry(after time.Duration) {
	s := r.state
	if !r.cfg.AutoRetry {
		return
	}
	if s.Session.RetryPending {
		return
	}
	s.Session.RetryPending = true
	r.cmd(CmdArmRetry{After: after})
}

// load validates and executes the shared load/seek path.
func (r *reduction) load(id string, requested *float64, pauseAfter bool) {
	s := r.state

	if s.Session.Conn != ConnOK {
		r.notice(slog.LevelWarn, "load ignored: not connected", "channel", id)
		return
	}
	ch, ok := s.Channels[id]
	if !ok {
		r.notice(slog.LevelWarn, "load rejected: unknown channel", "channel", id)
		return
	}
	if ch.Broken {
		r.notice(slog.LevelWarn, "load rejected: channel reports an error", "channel", id)
		return
	}

	t := resolveStartTime(s, ch, requested, r.now)

	// Optimistic cursor update; the next authoritative player delta corrects it.
	s.CurrentChannel = id
	s.CurrentTime = &t

	r.cmd(CmdLoadChannel{Channel: id, Time: t, PauseAfter: pauseAfter})
	r.variables()
	r.feedback(FeedbackActive)
}

// resolveStartTime applies the seek-time policy:
//
//   - nil (blank) resolves to 0 for a non-live channel, or the live edge
//     (current duration) for a live one;
//   - anything landing within the end buffer clamps to duration - buffer,
//     floored at 0;
//   - negative times clamp to 0.
func resolveStartTime(s *DeviceState, ch *Channel, requested *float64, now time.Time) float64 {
	var t float64
	if requested == nil {
		if s.IsLive(ch.ID, now) {
			t = ch.Duration
		}
	} else {
		t = *requested
	}

	if t < 0 {
		t = 0
	}
	if ch.Duration > 0 && t >= ch.Duration-seekEndBufferSec {
		t = ch.Duration - seekEndBufferSec
		if t < 0 {
			t = 0
		}
	}
	return t
}

// reduceDelta routes one (scope, payload) update to the matching merge.
func (r *reduction) reduceDelta(ev DeltaReceived) {
	s := r.state

	if ev.Scope == playerScope {
		var d PlayerDelta
		if err := json.Unmarshal(ev.Payload, &d); err != nil {
			r.notice(slog.LevelWarn, "malformed player delta", "error", err)
			return
		}
		rep := s.MergePlayer(d, r.now)

		if rep.TimeSeen || rep.ChannelSeen {
			r.variables()
		}
		if rep.ChannelSeen {
			r.feedback(FeedbackActive)
		}
		if rep.PlayingSeen {
			r.feedback(FeedbackPlaying, FeedbackStopped)
			if r.cfg.PreviewEnabled {
				if s.Player.Playing {
					r.cmd(CmdFetchImage{Path: r.previewPath()})
					r.cmd(CmdArmImagePoll{After: r.cfg.PreviewInterval})
				} else {
					r.cmd(CmdStopImagePoll{})
				}
			}
		}
		return
	}

	if _, ok := s.Channels[ev.Scope]; ok {
		var d ChannelDelta
		if err := json.Unmarshal(ev.Payload, &d); err != nil {
			r.notice(slog.LevelWarn, "malformed channel delta", "channel", ev.Scope, "error", err)
			return
		}
		rep, _ := s.MergeChannel(ev.Scope, d, r.now)

		if rep.DurationChanged {
			r.feedback(FeedbackStreaming)
			if ev.Scope == s.CurrentChannel {
				r.variables()
			}
		}
		if rep.CloudSeen && !rep.DurationChanged {
			r.feedback(FeedbackStreaming)
		}
		return
	}

	// Unknown scopes are ignored for forward compatibility.
	r.notice(slog.LevelDebug, "ignoring delta for unknown scope", "scope", ev.Scope)
}

// variablesBroadcast derives the display values from the current cursor and
// channel. Unknown values render as empty strings.
func variablesBroadcast(s *DeviceState, at time.Time) BroadcastVariables {
	v := BroadcastVariables{At: at}
	if s.CurrentTime != nil {
		v.Time = FormatTimecode(*s.CurrentTime)
	}
	if ch, ok := s.Channels[s.CurrentChannel]; ok {
		v.Duration = FormatTimecode(ch.Duration)
		if s.CurrentTime != nil {
			v.Remaining = FormatTimecode(ch.Duration - *s.CurrentTime)
		}
	}
	return v
}

// snapshotOf builds the host-facing point-in-time view.
func snapshotOf(s *DeviceState, at time.Time) StateSnapshot {
	vars := variablesBroadcast(s, at)

	cues := make([]bool, cuepointSlots)
	for i := range s.Cuepoints {
		cues[i] = s.Cuepoints[i].Set
	}

	return StateSnapshot{
		Conn:          s.Session.Conn.String(),
		Authenticated: s.Session.Token != "",
		Playing:       s.Player.Playing,
		Channel:       s.CurrentChannel,
		Time:          vars.Time,
		Duration:      vars.Duration,
		Remaining:     vars.Remaining,
		Channels:      s.channelChoices(s.ChannelOrder),
		Cuepoints:     cues,
		HasPreview:    len(s.Preview) > 0,
		At:            at,
	}
}
