package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// runDaemon is the single owner of DeviceState. It:
//   - Receives Events from all sources (host surface, IPC, realtime socket,
//     effects observations, its own timers)
//   - Reduces events into (state, commands, broadcasts, notices)
//   - Executes timer commands itself and everything else via the Executor
//   - Fans broadcasts out to the host surface and logs the notices
//
// Design rules enforced here:
//   - The reducer performs no I/O; only the effects layer does.
//   - Effects observations come back as Events and are reduced like any other.
//   - Retry and image-poll timers are single-slot: arming cancels the
//     previous timer, so at most one of each is ever pending.
// ============================================================================

// slotTimer is a single-slot timer. Arm replaces any pending fire.
type slotTimer struct {
	timer *time.Timer
}

func (t *slotTimer) Arm(d time.Duration, fire func()) {
	t.Stop()
	t.timer = time.AfterFunc(d, fire)
}

func (t *slotTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// runDaemon processes events until ctx is canceled or the events channel is
// closed. On shutdown it reduces a final TeardownRequested so the device
// session is deleted and all timers stop.
func runDaemon(
	ctx context.Context,
	events chan Event,
	exec *Executor,
	cfg ReducerConfig,
	state *DeviceState,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		state = NewDeviceState()
	}

	var retryTimer, imageTimer slotTimer
	defer retryTimer.Stop()
	defer imageTimer.Stop()

	// Timers fire on their own goroutines; they hand the tick back to this
	// loop as an event instead of touching state.
	post := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(b StateBroadcast) {
		if broadcasts == nil {
			return
		}
		select {
		case broadcasts <- b:
		default:
			logger.Warn("broadcast queue full, dropping", "broadcast", b)
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			// Policy knobs follow a reconfiguration from this event on.
			if cu, ok := ev.(ConfigUpdated); ok {
				cfg = cu.Config
			}

			rr := Reduce(state, ev, cfg, time.Now())
			if rr.State != nil {
				state = rr.State
			}
			for _, n := range rr.Notices {
				logger.Log(ctx, n.Level, n.Message, n.Args...)
			}
			for _, b := range rr.Broadcasts {
				publish(b)
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
		}
	}

	// Execute all queued commands. Timer commands are handled inline; the
	// rest go to the effects executor, whose observations arrive later on
	// the events channel.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			switch c := cmd.(type) {
			case CmdArmRetry:
				retryTimer.Arm(c.After, func() {
					post(RetryDue{At: time.Now()})
				})
			case CmdStopRetry:
				retryTimer.Stop()
			case CmdArmImagePoll:
				imageTimer.Arm(c.After, func() {
					post(ImagePollDue{At: time.Now()})
				})
			case CmdStopImagePoll:
				imageTimer.Stop()
			default:
				exec.Run(ctx, cmd)
			}
		}
	}

	teardown := func() {
		enqueueEvent(TeardownRequested{})
		flushEvents()
		flushCommands()
	}

	// Kick off the session immediately.
	enqueueEvent(StartSession{})
	flushEvents()
	flushCommands()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			teardown()
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				teardown()
				return
			}
			enqueueEvent(ev)
			flushEvents()
			flushCommands()
		}
	}
}
