package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func startTestIPC(t *testing.T) (string, chan Event, context.CancelFunc) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "havdeck.sock")
	events := make(chan Event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := runIPCServer(ctx, socketPath, events, testLogger()); err != nil {
			t.Errorf("ipc server: %v", err)
		}
	}()

	// Wait for the listener to come up.
	waitUntil(t, time.Second, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, "ipc socket never came up")

	return socketPath, events, cancel
}

func TestIPC_RoundTrip(t *testing.T) {
	socketPath, events, cancel := startTestIPC(t)
	defer cancel()

	if err := SendIPCAction(socketPath, LoadChannel{Channel: "ch1", Time: "90"}); err != nil {
		t.Fatalf("send action: %v", err)
	}

	select {
	case ev := <-events:
		lc, ok := ev.(LoadChannel)
		if !ok {
			t.Fatalf("expected LoadChannel, got %T", ev)
		}
		if lc.Channel != "ch1" || lc.Time != "90" {
			t.Fatalf("unexpected action: %+v", lc)
		}
	case <-time.After(time.Second):
		t.Fatalf("action never reached the event channel")
	}
}

func TestIPC_MalformedLineGetsErrorResponse(t *testing.T) {
	socketPath, events, cancel := startTestIPC(t)
	defer cancel()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, `{"type":"make_coffee"}`); err != nil {
		t.Fatalf("write: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	var resp IPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Fatalf("expected error response, got %+v", resp)
	}

	select {
	case ev := <-events:
		t.Fatalf("malformed line must not produce an event, got %T", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
