package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// havdeck-ctl - Command-line IPC Client
// ============================================================================
// This tool sends playback commands to the havdeck daemon via IPC.
//
// Usage:
//   havdeck-ctl play-pause
//   havdeck-ctl load ch1 00:05:00
//   havdeck-ctl skip -15
//   havdeck-ctl goto 01:30:00
//   havdeck-ctl cue-set 1
//   havdeck-ctl cue-recall 1 pause
//   havdeck-ctl reboot
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/havdeck.sock)
// ============================================================================

// Action types (duplicated from the daemon package for a standalone binary)
type Action interface{}

type Connect struct{}

type PlayPause struct{}

type LoadChannel struct {
	Channel string `json:"channel"`
	Time    string `json:"time,omitempty"`
}

type Skip struct {
	Delta float64 `json:"delta"`
}

type GoToTime struct {
	Time string `json:"time"`
}

type SetCuepoint struct {
	Slot int `json:"slot"`
}

type RecallCuepoint struct {
	Slot      int    `json:"slot"`
	PlayState string `json:"play_state,omitempty"`
}

type RebootDevice struct{}

// ActionEnvelope wraps actions for JSON
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/havdeck.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var action Action

	switch args[0] {
	case "connect":
		action = Connect{}

	case "play-pause", "pp":
		action = PlayPause{}

	case "load":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: load requires a channel id\n")
			os.Exit(1)
		}
		a := LoadChannel{Channel: args[1]}
		if len(args) > 2 {
			a.Time = args[2]
		}
		action = a

	case "skip":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: skip requires a seconds delta\n")
			os.Exit(1)
		}
		delta, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid delta: %v\n", err)
			os.Exit(1)
		}
		action = Skip{Delta: delta}

	case "goto", "go-to-time":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: goto requires a time\n")
			os.Exit(1)
		}
		action = GoToTime{Time: args[1]}

	case "cue-set":
		slot, err := parseSlot(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		action = SetCuepoint{Slot: slot}

	case "cue-recall":
		slot, err := parseSlot(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		a := RecallCuepoint{Slot: slot}
		if len(args) > 2 {
			a.PlayState = args[2]
		}
		action = a

	case "reboot":
		action = RebootDevice{}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendAction(socketPath, action); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func parseSlot(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a slot number", args[0])
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid slot: %v", err)
	}
	return slot, nil
}

func sendAction(socketPath string, action Action) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := marshalAction(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send action: %w", err)
	}

	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func marshalAction(action Action) ([]byte, error) {
	var env ActionEnvelope

	switch a := action.(type) {
	case Connect:
		env.Type = "connect"

	case PlayPause:
		env.Type = "play_pause"

	case LoadChannel:
		env.Type = "load_channel"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal LoadChannel: %w", err)
		}
		env.Data = data

	case Skip:
		env.Type = "skip"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal Skip: %w", err)
		}
		env.Data = data

	case GoToTime:
		env.Type = "go_to_time"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal GoToTime: %w", err)
		}
		env.Data = data

	case SetCuepoint:
		env.Type = "set_cuepoint"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetCuepoint: %w", err)
		}
		env.Data = data

	case RecallCuepoint:
		env.Type = "recall_cuepoint"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal RecallCuepoint: %w", err)
		}
		env.Data = data

	case RebootDevice:
		env.Type = "reboot"

	default:
		return nil, fmt.Errorf("unknown action type: %T", action)
	}

	return json.Marshal(env)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `havdeck-ctl - Control the havdeck daemon via IPC

Usage:
  havdeck-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/havdeck.sock)

Commands:
  connect                     (Re)connect to the device
  play-pause, pp              Toggle play/pause
  load <channel> [time]       Load a channel, optionally at HH:MM:SS or seconds
  skip <seconds>              Seek relative on the current channel (negative = back)
  goto <time>                 Seek absolute on the current channel
  cue-set <slot>              Store the current position in a cuepoint slot (1-5)
  cue-recall <slot> [pause]   Recall a cuepoint, optionally ending paused
  reboot                      Reboot the device
  help, -h, --help            Show this help message

Examples:
  havdeck-ctl load ch1 00:05:00
  havdeck-ctl skip -15
  havdeck-ctl -socket /var/run/havdeck.sock play-pause
`)
}
