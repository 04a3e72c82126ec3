package main

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testCfg() ReducerConfig {
	return ReducerConfig{
		AutoRetry:          true,
		RetryInterval:      10 * time.Second,
		RebootWait:         180 * time.Second,
		PreviewEnabled:     true,
		PreviewInterval:    time.Second,
		DefaultPreviewPath: defaultPreviewPath,
	}
}

// connectedState returns a state mid-session with one known channel.
func connectedState() *DeviceState {
	s := NewDeviceState()
	s.Session.Conn = ConnOK
	s.Session.Token = "tok"
	s.Channels["ch1"] = &Channel{ID: "ch1", Name: "Main", Duration: 100}
	s.ChannelOrder = []string{"ch1"}
	return s
}

func findLoad(rr ReduceResult) (CmdLoadChannel, bool) {
	for _, c := range rr.Commands {
		if lc, ok := c.(CmdLoadChannel); ok {
			return lc, true
		}
	}
	return CmdLoadChannel{}, false
}

func countArmRetry(rr ReduceResult) int {
	n := 0
	for _, c := range rr.Commands {
		if _, ok := c.(CmdArmRetry); ok {
			n++
		}
	}
	return n
}

func hasCmd(rr ReduceResult, match func(Command) bool) bool {
	for _, c := range rr.Commands {
		if match(c) {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Session lifecycle
// ----------------------------------------------------------------------------

func TestReduce_StartSession_BeginsLogin(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	rr := Reduce(NewDeviceState(), StartSession{}, testCfg(), t0)

	if rr.State.Session.Conn != ConnConnecting {
		t.Fatalf("expected connecting, got %v", rr.State.Session.Conn)
	}
	if rr.State.Session.Attempt == uuid.Nil {
		t.Fatalf("expected a login attempt id")
	}
	found := false
	for _, c := range rr.Commands {
		if lc, ok := c.(CmdLogin); ok {
			found = true
			if lc.Attempt != rr.State.Session.Attempt {
				t.Fatalf("login command attempt mismatch")
			}
		}
	}
	if !found {
		t.Fatalf("expected CmdLogin, got %v", rr.Commands)
	}
}

func TestReduce_StaleLoginResult_Ignored(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := NewDeviceState()
	s.Session.Attempt = uuid.New()
	s.Session.Conn = ConnConnecting

	rr := Reduce(s, LoginSucceeded{Attempt: uuid.New(), Token: "stale", At: t0}, testCfg(), t0)

	if rr.State.Session.Token != "" {
		t.Fatalf("stale login must not install a token")
	}
	if len(rr.Commands) != 0 {
		t.Fatalf("stale login must not emit commands, got %v", rr.Commands)
	}

	// Stale failures must not tear anything down either.
	rr = Reduce(rr.State, LoginFailed{Attempt: uuid.New(), Err: errors.New("boom"), At: t0}, testCfg(), t0)
	if rr.State.Session.Conn != ConnConnecting {
		t.Fatalf("stale failure must not change conn state, got %v", rr.State.Session.Conn)
	}
	if countArmRetry(rr) != 0 {
		t.Fatalf("stale failure must not arm a retry")
	}
}

func TestReduce_LoginSucceeded_OpensSocket(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := NewDeviceState()
	attempt := uuid.New()
	s.Session.Attempt = attempt
	s.Session.Conn = ConnConnecting

	rr := Reduce(s, LoginSucceeded{Attempt: attempt, Token: "tok", At: t0}, testCfg(), t0)

	if rr.State.Session.Token != "tok" {
		t.Fatalf("expected token installed")
	}
	if !hasCmd(rr, func(c Command) bool {
		oc, ok := c.(CmdOpenSocket)
		return ok && oc.Token == "tok"
	}) {
		t.Fatalf("expected CmdOpenSocket with token, got %v", rr.Commands)
	}
}

func TestReduce_LoginFailed_ArmsSingleRetry(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	cfg := testCfg()

	s := NewDeviceState()
	attempt := uuid.New()
	s.Session.Attempt = attempt
	s.Session.Conn = ConnConnecting

	rr := Reduce(s, LoginFailed{Attempt: attempt, Err: errors.New("401"), At: t0}, cfg, t0)

	if rr.State.Session.Conn != ConnError {
		t.Fatalf("expected error conn state, got %v", rr.State.Session.Conn)
	}
	if got := countArmRetry(rr); got != 1 {
		t.Fatalf("expected 1 CmdArmRetry, got %d", got)
	}
	if !rr.State.Session.RetryPending {
		t.Fatalf("expected retry pending")
	}

	// A connectivity failure while a retry is already pending must not arm a
	// second timer.
	rr2 := Reduce(rr.State, SocketClosed{Err: errors.New("eof"), At: t0}, cfg, t0)
	if got := countArmRetry(rr2); got != 0 {
		t.Fatalf("expected no second CmdArmRetry, got %d", got)
	}
}

func TestReduce_SocketClosed_ClearsSessionAndRetries(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	cfg := testCfg()

	rr := Reduce(connectedState(), SocketClosed{Err: errors.New("eof"), At: t0}, cfg, t0)

	if rr.State.Session.Token != "" {
		t.Fatalf("expected token cleared on socket loss")
	}
	if rr.State.Session.Conn != ConnError {
		t.Fatalf("expected error conn state, got %v", rr.State.Session.Conn)
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdCloseSocket); return ok }) {
		t.Fatalf("expected CmdCloseSocket")
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdStopImagePoll); return ok }) {
		t.Fatalf("expected CmdStopImagePoll")
	}
	for _, c := range rr.Commands {
		if ar, ok := c.(CmdArmRetry); ok {
			if ar.After != cfg.RetryInterval {
				t.Fatalf("expected normal retry interval, got %v", ar.After)
			}
		}
	}
}

func TestReduce_SocketClosed_AfterTeardown_NoOp(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := NewDeviceState()
	s.Session.Conn = ConnDisconnected

	rr := Reduce(s, SocketClosed{Err: errors.New("eof"), At: t0}, testCfg(), t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("socket close after teardown must be a no-op, got %v", rr.Commands)
	}
}

func TestReduce_SessionInvalidated_ReloginsImmediately(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	rr := Reduce(connectedState(), SessionInvalidated{At: t0}, testCfg(), t0)

	if rr.State.Session.Token != "" {
		t.Fatalf("expected token cleared")
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdLogin); return ok }) {
		t.Fatalf("expected immediate CmdLogin, got %v", rr.Commands)
	}
	if countArmRetry(rr) != 0 {
		t.Fatalf("invalidation relogin must not wait out a retry interval")
	}
}

func TestReduce_RetryDue(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	// Disconnected: retry triggers a fresh login.
	s := NewDeviceState()
	s.Session.Conn = ConnError
	s.Session.RetryPending = true

	rr := Reduce(s, RetryDue{At: t0}, testCfg(), t0)
	if rr.State.Session.RetryPending {
		t.Fatalf("expected retry pending cleared")
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdLogin); return ok }) {
		t.Fatalf("expected CmdLogin on retry, got %v", rr.Commands)
	}

	// Already connected: the tick is spurious, no login.
	rr2 := Reduce(connectedState(), RetryDue{At: t0}, testCfg(), t0)
	if hasCmd(rr2, func(c Command) bool { _, ok := c.(CmdLogin); return ok }) {
		t.Fatalf("retry while connected must not re-login")
	}
}

func TestReduce_Reboot(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	cfg := testCfg()

	// Refused when not connected.
	rr := Reduce(NewDeviceState(), RebootDevice{}, cfg, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("reboot while disconnected must be refused, got %v", rr.Commands)
	}

	// Accepted when connected; uses the long wait.
	rr = Reduce(connectedState(), RebootDevice{}, cfg, t0)
	if !hasCmd(rr, func(c Command) bool {
		rc, ok := c.(CmdRebootDevice)
		return ok && rc.Token == "tok"
	}) {
		t.Fatalf("expected CmdRebootDevice, got %v", rr.Commands)
	}
	if !rr.State.Session.Rebooting {
		t.Fatalf("expected rebooting flag")
	}
	if rr.State.Session.Conn != ConnWarning {
		t.Fatalf("expected warning conn state, got %v", rr.State.Session.Conn)
	}
	armed := false
	for _, c := range rr.Commands {
		if ar, ok := c.(CmdArmRetry); ok {
			armed = true
			if ar.After != cfg.RebootWait {
				t.Fatalf("expected reboot wait %v, got %v", cfg.RebootWait, ar.After)
			}
		}
	}
	if !armed {
		t.Fatalf("expected CmdArmRetry after reboot")
	}
}

func TestReduce_ConfigUpdated_RebuildsSession(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	rr := Reduce(connectedState(), ConfigUpdated{Config: testCfg(), At: t0}, testCfg(), t0)

	if rr.State.Session.Token != "" {
		t.Fatalf("expected token cleared on reconfiguration")
	}
	if rr.State.Session.Conn != ConnConnecting {
		t.Fatalf("expected connecting, got %v", rr.State.Session.Conn)
	}
	if !hasCmd(rr, func(c Command) bool {
		dc, ok := c.(CmdDeleteSession)
		return ok && dc.Token == "tok"
	}) {
		t.Fatalf("expected old session deleted, got %v", rr.Commands)
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdCloseSocket); return ok }) {
		t.Fatalf("expected socket closed")
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdLogin); return ok }) {
		t.Fatalf("expected fresh login, got %v", rr.Commands)
	}
	if countArmRetry(rr) != 0 {
		t.Fatalf("reconfiguration must relogin immediately, not via retry")
	}
}

func TestReduce_Teardown(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	rr := Reduce(connectedState(), TeardownRequested{}, testCfg(), t0)

	if rr.State.Session.Conn != ConnDisconnected {
		t.Fatalf("expected disconnected, got %v", rr.State.Session.Conn)
	}
	if !hasCmd(rr, func(c Command) bool {
		dc, ok := c.(CmdDeleteSession)
		return ok && dc.Token == "tok"
	}) {
		t.Fatalf("expected CmdDeleteSession, got %v", rr.Commands)
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdStopRetry); return ok }) {
		t.Fatalf("expected CmdStopRetry")
	}
}

// ----------------------------------------------------------------------------
// Snapshot and deltas
// ----------------------------------------------------------------------------

func TestReduce_Snapshot_PublishesCatalogAndFetchesPreview(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := connectedState()
	playing := true
	rr := Reduce(s, SnapshotReceived{
		Snapshot: DeviceSnapshot{
			Player: PlayerDelta{Playing: &playing, Channel: sptr("ch2"), Time: fptr(5)},
			Channels: map[string]ChannelDelta{
				"ch2": {Name: sptr("Backup"), Duration: fptr(50)},
			},
			Order: []string{"ch2"},
		},
		At: t0,
	}, testCfg(), t0)

	var gotCatalog bool
	for _, b := range rr.Broadcasts {
		if cat, ok := b.(BroadcastCatalog); ok {
			gotCatalog = true
			if len(cat.Channels) != 1 || cat.Channels[0].ID != "ch2" {
				t.Fatalf("unexpected catalog channels: %+v", cat.Channels)
			}
		}
	}
	if !gotCatalog {
		t.Fatalf("expected a catalog broadcast")
	}

	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdFetchImage); return ok }) {
		t.Fatalf("expected CmdFetchImage after snapshot")
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdArmImagePoll); return ok }) {
		t.Fatalf("expected image poll armed while playing")
	}
}

func TestReduce_Delta_UnknownScope_EmitsNothing(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	rr := Reduce(connectedState(), DeltaReceived{
		Scope:   "mystery",
		Payload: json.RawMessage(`{"duration":10}`),
		At:      t0,
	}, testCfg(), t0)

	if len(rr.Commands) != 0 || len(rr.Broadcasts) != 0 {
		t.Fatalf("unknown scope must produce no commands or broadcasts, got %v / %v", rr.Commands, rr.Broadcasts)
	}
}

func TestReduce_PlayerDelta_DrivesImagePolling(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	cfg := testCfg()

	s := connectedState()
	rr := Reduce(s, DeltaReceived{
		Scope:   playerScope,
		Payload: json.RawMessage(`{"playing":true}`),
		At:      t0,
	}, cfg, t0)

	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdFetchImage); return ok }) {
		t.Fatalf("expected fetch when playback starts")
	}
	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdArmImagePoll); return ok }) {
		t.Fatalf("expected poll armed when playback starts")
	}

	rr = Reduce(rr.State, DeltaReceived{
		Scope:   playerScope,
		Payload: json.RawMessage(`{"playing":false}`),
		At:      t0,
	}, cfg, t0)

	if !hasCmd(rr, func(c Command) bool { _, ok := c.(CmdStopImagePoll); return ok }) {
		t.Fatalf("expected poll stopped when playback stops")
	}

	// The poll tick re-arms only while playing.
	rr = Reduce(rr.State, ImagePollDue{At: t0}, cfg, t0)
	if len(rr.Commands) != 0 {
		t.Fatalf("poll tick while paused must decay, got %v", rr.Commands)
	}
}

func TestReduce_ChannelDelta_DurationChangeInvalidatesStreaming(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := connectedState()
	s.CurrentChannel = "ch1"
	s.CurrentTime = fptr(10)

	rr := Reduce(s, DeltaReceived{
		Scope:   "ch1",
		Payload: json.RawMessage(`{"duration":102}`),
		At:      t0,
	}, testCfg(), t0)

	var gotStreaming, gotVars bool
	for _, b := range rr.Broadcasts {
		switch bb := b.(type) {
		case BroadcastFeedback:
			for _, n := range bb.Names {
				if n == FeedbackStreaming {
					gotStreaming = true
				}
			}
		case BroadcastVariables:
			gotVars = true
			if bb.Duration != "00:01:42" {
				t.Fatalf("expected duration 00:01:42, got %q", bb.Duration)
			}
		}
	}
	if !gotStreaming {
		t.Fatalf("expected streaming feedback invalidation")
	}
	if !gotVars {
		t.Fatalf("expected variables republished for the current channel")
	}
}

// ----------------------------------------------------------------------------
// Loads, seeks, cuepoints
// ----------------------------------------------------------------------------

func TestReduce_Load_SeekPolicy(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	cases := []struct {
		name     string
		duration float64
		live     bool
		time     string
		want     float64
	}{
		{"plain seek", 100, false, "10", 10},
		{"end clamp", 100, false, "100", 75},
		{"inside buffer", 100, false, "80", 75},
		{"short channel", 30, false, "28", 5},
		{"shorter than buffer", 20, false, "19", 0},
		{"negative", 100, false, "-5", 0},
		{"blank not live", 100, false, "", 0},
		{"blank live", 100, true, "", 75},
		{"timecode", 100, false, "00:00:30", 30},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := connectedState()
			s.Channels["ch1"].Duration = c.duration
			if c.live {
				s.Channels["ch1"].LastDurationChange = t0.Add(-time.Second)
			}

			rr := Reduce(s, LoadChannel{Channel: "ch1", Time: c.time}, testCfg(), t0)

			lc, ok := findLoad(rr)
			if !ok {
				t.Fatalf("expected CmdLoadChannel, got %v", rr.Commands)
			}
			if lc.Time != c.want {
				t.Fatalf("expected load time %v, got %v", c.want, lc.Time)
			}

			// Optimistic cursor update.
			if rr.State.CurrentChannel != "ch1" {
				t.Fatalf("expected cursor channel set")
			}
			if rr.State.CurrentTime == nil || *rr.State.CurrentTime != c.want {
				t.Fatalf("expected cursor time %v, got %v", c.want, rr.State.CurrentTime)
			}
		})
	}
}

func TestReduce_Load_Rejections(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	// Unknown channel.
	rr := Reduce(connectedState(), LoadChannel{Channel: "ghost"}, testCfg(), t0)
	if _, ok := findLoad(rr); ok {
		t.Fatalf("unknown channel must not load")
	}

	// Broken channel.
	s := connectedState()
	s.Channels["ch1"].Broken = true
	rr = Reduce(s, LoadChannel{Channel: "ch1"}, testCfg(), t0)
	if _, ok := findLoad(rr); ok {
		t.Fatalf("broken channel must not load")
	}

	// Not connected.
	s = connectedState()
	s.Session.Conn = ConnError
	rr = Reduce(s, LoadChannel{Channel: "ch1"}, testCfg(), t0)
	if _, ok := findLoad(rr); ok {
		t.Fatalf("load while disconnected must be refused")
	}

	// Unparseable time.
	rr = Reduce(connectedState(), LoadChannel{Channel: "ch1", Time: "bogus"}, testCfg(), t0)
	if _, ok := findLoad(rr); ok {
		t.Fatalf("unparseable time must be rejected")
	}
}

func TestReduce_Skip_UsesCursor(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := connectedState()
	s.CurrentChannel = "ch1"
	s.CurrentTime = fptr(50)

	rr := Reduce(s, Skip{Delta: -15}, testCfg(), t0)
	lc, ok := findLoad(rr)
	if !ok {
		t.Fatalf("expected CmdLoadChannel, got %v", rr.Commands)
	}
	if lc.Time != 35 {
		t.Fatalf("expected skip to 35, got %v", lc.Time)
	}

	// Repeated skips build on the optimistic cursor even before the device
	// echoes back.
	rr = Reduce(rr.State, Skip{Delta: -15}, testCfg(), t0)
	lc, ok = findLoad(rr)
	if !ok || lc.Time != 20 {
		t.Fatalf("expected second skip to 20, got %v (ok=%v)", lc.Time, ok)
	}

	// No cursor: ignored.
	rr = Reduce(connectedState(), Skip{Delta: 30}, testCfg(), t0)
	if _, ok := findLoad(rr); ok {
		t.Fatalf("skip with no cursor must be ignored")
	}
}

func TestReduce_Cuepoints(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	cfg := testCfg()

	s := connectedState()
	s.CurrentChannel = "ch1"
	s.CurrentTime = fptr(42)
	s.Preview = []byte{1, 2, 3}

	// Store.
	rr := Reduce(s, SetCuepoint{Slot: 2}, cfg, t0)
	cp := rr.State.Cuepoints[1]
	if !cp.Set || cp.Channel != "ch1" || cp.Time != 42 {
		t.Fatalf("unexpected cuepoint: %+v", cp)
	}
	if len(cp.Image) != 3 {
		t.Fatalf("expected preview snapshot stored with cuepoint")
	}

	// Out-of-range slots are ignored.
	rr2 := Reduce(rr.State, SetCuepoint{Slot: 0}, cfg, t0)
	if len(rr2.Commands) != 0 {
		t.Fatalf("slot 0 must be ignored")
	}
	rr2 = Reduce(rr2.State, SetCuepoint{Slot: cuepointSlots + 1}, cfg, t0)
	if len(rr2.Commands) != 0 {
		t.Fatalf("slot out of range must be ignored")
	}

	// Recall with pause: the load command carries the pause-after flag.
	rr3 := Reduce(rr2.State, RecallCuepoint{Slot: 2, PlayState: "pause"}, cfg, t0)
	lc, ok := findLoad(rr3)
	if !ok {
		t.Fatalf("expected load on recall")
	}
	if lc.Time != 42 || !lc.PauseAfter {
		t.Fatalf("expected load at 42 with pause-after, got %+v", lc)
	}

	// The pause itself rides the device ack.
	rr4 := Reduce(rr3.State, LoadAcked{PauseAfter: true, At: t0}, cfg, t0)
	if !hasCmd(rr4, func(c Command) bool { _, ok := c.(CmdTogglePlay); return ok }) {
		t.Fatalf("expected toggle after acked pause load")
	}

	// Empty slot recall is a no-op.
	rr5 := Reduce(rr4.State, RecallCuepoint{Slot: 4}, cfg, t0)
	if _, ok := findLoad(rr5); ok {
		t.Fatalf("empty slot recall must not load")
	}

	// Set without an active position is refused.
	rr6 := Reduce(connectedState(), SetCuepoint{Slot: 1}, cfg, t0)
	if rr6.State.Cuepoints[0].Set {
		t.Fatalf("cuepoint must not be stored without an active position")
	}
}

// ----------------------------------------------------------------------------
// Preview images
// ----------------------------------------------------------------------------

func TestReduce_ImageFetchFailed_ClearsPreview(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := connectedState()
	s.Preview = []byte{1, 2, 3}

	rr := Reduce(s, ImageFetchFailed{Err: errors.New("504"), At: t0}, testCfg(), t0)

	if rr.State.Preview != nil {
		t.Fatalf("expected stale preview cleared")
	}
	var cleared bool
	for _, b := range rr.Broadcasts {
		if bp, ok := b.(BroadcastPreview); ok && len(bp.Image) == 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected an empty preview broadcast")
	}
}

func TestReduce_ImageFetched_StoresAndBroadcasts(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	rr := Reduce(connectedState(), ImageFetched{Data: []byte{9, 9}, At: t0}, testCfg(), t0)

	if len(rr.State.Preview) != 2 {
		t.Fatalf("expected preview cached")
	}
	var sent bool
	for _, b := range rr.Broadcasts {
		if bp, ok := b.(BroadcastPreview); ok && len(bp.Image) == 2 {
			sent = true
		}
	}
	if !sent {
		t.Fatalf("expected preview broadcast")
	}
}

// ----------------------------------------------------------------------------
// Snapshot requests
// ----------------------------------------------------------------------------

func TestReduce_RequestStateSnapshot(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := connectedState()
	s.CurrentChannel = "ch1"
	s.CurrentTime = fptr(30)
	s.Player.Playing = true

	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply}, testCfg(), t0)

	var snap StateSnapshot
	var found bool
	for _, c := range rr.Commands {
		if pc, ok := c.(CmdPublishStateSnapshot); ok {
			snap = pc.Snapshot
			found = true
			if pc.Reply == nil {
				t.Fatalf("expected reply channel forwarded")
			}
		}
	}
	if !found {
		t.Fatalf("expected CmdPublishStateSnapshot, got %v", rr.Commands)
	}

	if snap.Conn != "ok" || !snap.Authenticated || !snap.Playing {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if snap.Time != "00:00:30" || snap.Duration != "00:01:40" || snap.Remaining != "00:01:10" {
		t.Fatalf("unexpected snapshot times: %+v", snap)
	}
}
