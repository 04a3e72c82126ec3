package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// The effects layer executes reducer-emitted Commands against the device and
// emits observation Events back into the daemon loop.
//
// Design rules:
//   - Only this layer performs I/O.
//   - It never calls Reduce() directly; it only emits Events to be reduced.
//   - Slow operations (login, logout, reboot, dial, image fetch) run on their
//     own goroutines so the daemon loop never stalls behind the network.
//
// Timer commands (CmdArmRetry and friends) are not handled here; the daemon
// loop owns its timers directly.

// Executor holds the mutable connection state the effects layer needs: the
// single live realtime socket and the cancel handle of the in-flight login.
// The device client and configs are swappable at runtime via Reconfigure.
type Executor struct {
	events chan<- Event
	logger *slog.Logger

	mu          sync.Mutex
	api         DeviceAPI
	device      DeviceConfig
	preview     PreviewConfig
	sock        *SocketIOClient
	sockGen     int
	loginCancel context.CancelFunc
}

// NewExecutor builds the effects executor.
func NewExecutor(api DeviceAPI, device DeviceConfig, preview PreviewConfig, events chan<- Event, logger *slog.Logger) *Executor {
	return &Executor{
		api:     api,
		device:  device,
		preview: preview,
		events:  events,
		logger:  logger,
	}
}

// Reconfigure swaps the device client and configs. Callers are expected to
// follow up with a ConfigUpdated event so the reducer rebuilds the session.
func (e *Executor) Reconfigure(api DeviceAPI, device DeviceConfig, preview PreviewConfig) {
	e.mu.Lock()
	e.api = api
	e.device = device
	e.preview = preview
	e.mu.Unlock()
}

// deps reads the swappable dependencies consistently.
func (e *Executor) deps() (DeviceAPI, DeviceConfig, PreviewConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.api, e.device, e.preview
}

// emit delivers an observation event unless the daemon is already gone.
func (e *Executor) emit(ctx context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

// Run executes one command.
func (e *Executor) Run(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case CmdLogin:
		e.runLogin(ctx, c)

	case CmdCancelLogin:
		e.cancelLogin()

	case CmdDeleteSession:
		api, _, _ := e.deps()
		go func() {
			// Shutdown-time logout must outlive the daemon context.
			lctx, cancel := context.WithTimeout(context.Background(), socketHandshakeTimeout)
			defer cancel()
			if err := api.Logout(lctx, c.Token); err != nil {
				e.logger.Debug("session delete failed", "error", err)
			}
		}()

	case CmdRebootDevice:
		api, _, _ := e.deps()
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), socketHandshakeTimeout)
			defer cancel()
			if err := api.Reboot(rctx, c.Token); err != nil {
				// The device commonly drops the connection mid-reply.
				e.logger.Debug("reboot request ended with error", "error", err)
			}
		}()

	case CmdOpenSocket:
		e.openSocket(ctx, c.Token)

	case CmdCloseSocket:
		e.closeSocket()

	case CmdTogglePlay:
		if sock := e.currentSocket(); sock != nil {
			if err := sock.Emit(togglePlayEvent); err != nil {
				e.logger.Warn("toggle play emit failed", "error", err)
			}
		} else {
			e.logger.Warn("toggle play dropped, no realtime socket")
		}

	case CmdLoadChannel:
		e.runLoadChannel(ctx, c)

	case CmdFetchImage:
		go e.runFetchImage(ctx, c.Path)

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			e.logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		select {
		case c.Reply <- c.Snapshot:
		default:
			e.logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		e.logger.Warn("unknown command type", "command", cmd.String())
	}
}

// runLogin starts an asynchronous login attempt. Any previous attempt is
// canceled first so at most one is in flight.
func (e *Executor) runLogin(ctx context.Context, c CmdLogin) {
	lctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if e.loginCancel != nil {
		e.loginCancel()
	}
	e.loginCancel = cancel
	api := e.api
	e.mu.Unlock()

	go func() {
		token, err := api.Login(lctx)
		now := time.Now()

		if lctx.Err() == context.Canceled {
			// Canceled attempts report nothing; the reducer moved on.
			return
		}
		if err != nil {
			e.emit(ctx, LoginFailed{Attempt: c.Attempt, Err: err, At: now})
			return
		}
		e.emit(ctx, LoginSucceeded{Attempt: c.Attempt, Token: token, At: now})
	}()
}

func (e *Executor) cancelLogin() {
	e.mu.Lock()
	if e.loginCancel != nil {
		e.loginCancel()
		e.loginCancel = nil
	}
	e.mu.Unlock()
}

// openSocket replaces the live socket with a fresh dial. The generation
// counter guards against a dial completing after a later close or re-open.
func (e *Executor) openSocket(ctx context.Context, token string) {
	e.mu.Lock()
	if e.sock != nil {
		e.sock.Close()
		e.sock = nil
	}
	e.sockGen++
	gen := e.sockGen
	device := e.device
	e.mu.Unlock()

	go func() {
		sock, err := DialDeviceSocket(ctx, device, token, e.events, e.logger)
		if err != nil {
			e.emit(ctx, SocketClosed{Err: err, At: time.Now()})
			return
		}

		e.mu.Lock()
		if e.sockGen != gen {
			e.mu.Unlock()
			sock.Close()
			return
		}
		e.sock = sock
		e.mu.Unlock()
	}()
}

func (e *Executor) closeSocket() {
	e.mu.Lock()
	e.sockGen++
	if e.sock != nil {
		e.sock.Close()
		e.sock = nil
	}
	e.mu.Unlock()
}

func (e *Executor) currentSocket() *SocketIOClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sock
}

// runLoadChannel emits the load event. When the load should end paused, the
// pause toggle rides the device's acknowledgment so it lands after the load
// has actually started.
func (e *Executor) runLoadChannel(ctx context.Context, c CmdLoadChannel) {
	sock := e.currentSocket()
	if sock == nil {
		e.logger.Warn("load channel dropped, no realtime socket", "channel", c.Channel)
		return
	}

	var err error
	if c.PauseAfter {
		err = sock.EmitWithAck(loadChannelEvent, func() {
			e.emit(ctx, LoadAcked{PauseAfter: true, At: time.Now()})
		}, c.Channel, c.Time, true)
	} else {
		err = sock.Emit(loadChannelEvent, c.Channel, c.Time, true)
	}
	if err != nil {
		e.logger.Warn("load channel emit failed", "channel", c.Channel, "error", err)
	}
}

// runFetchImage GETs the device screenshot, scales it down, and reports the
// result. Failures clear the cached preview via ImageFetchFailed.
func (e *Executor) runFetchImage(ctx context.Context, path string) {
	fctx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
	defer cancel()

	api, _, preview := e.deps()

	raw, err := api.FetchImage(fctx, path)
	now := time.Now()
	if err != nil {
		e.emit(ctx, ImageFetchFailed{Err: err, At: now})
		return
	}

	thumb, err := MakeThumbnail(raw, preview.Width, preview.Height)
	if err != nil {
		e.emit(ctx, ImageFetchFailed{Err: err, At: now})
		return
	}
	e.emit(ctx, ImageFetched{Data: thumb, At: now})
}
