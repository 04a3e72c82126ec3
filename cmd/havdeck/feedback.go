package main

import "time"

// ============================================================================
// Feedback evaluator
// ============================================================================
// Pure predicates over DeviceState, one per host feedback. Hosts learn which
// predicates to re-query from BroadcastFeedback invalidations.
// ============================================================================

// Feedback names as published in the catalog and in invalidations.
const (
	FeedbackStreaming = "streaming"
	FeedbackActive    = "active"
	FeedbackPlaying   = "playing"
	FeedbackStopped   = "stopped"
	FeedbackCuepoint  = "cuepoint"
	FeedbackPreview   = "preview"
)

func allFeedbackNames() []string {
	return []string{
		FeedbackStreaming,
		FeedbackActive,
		FeedbackPlaying,
		FeedbackStopped,
		FeedbackCuepoint,
		FeedbackPreview,
	}
}

// Host action names as published in the catalog.
func allActionNames() []string {
	return []string{
		"play_pause",
		"load_channel",
		"skip",
		"go_to_time",
		"set_cuepoint",
		"recall_cuepoint",
		"reboot",
	}
}

// FeedbackStreamingOn reports whether a channel is live right now.
func FeedbackStreamingOn(s *DeviceState, channel string, now time.Time) bool {
	return s.IsLive(channel, now)
}

// FeedbackActiveOn reports whether a channel is the current one.
func FeedbackActiveOn(s *DeviceState, channel string) bool {
	return channel != "" && channel == s.CurrentChannel
}

// FeedbackPlayingOn reports whether the player is playing.
func FeedbackPlayingOn(s *DeviceState) bool {
	return s.Player.Playing
}

// FeedbackStoppedOn is the negation of playing.
func FeedbackStoppedOn(s *DeviceState) bool {
	return !s.Player.Playing
}

// FeedbackCuepointOn reports whether a slot (1-based) is occupied.
func FeedbackCuepointOn(s *DeviceState, slot int) bool {
	if slot < 1 || slot > cuepointSlots {
		return false
	}
	return s.Cuepoints[slot-1].Set
}

// CuepointImage returns the snapshot image stored in a slot, if any.
func CuepointImage(s *DeviceState, slot int) []byte {
	if !FeedbackCuepointOn(s, slot) {
		return nil
	}
	return s.Cuepoints[slot-1].Image
}

// PreviewImage returns the cached preview thumbnail, if present.
func PreviewImage(s *DeviceState) []byte {
	return s.Preview
}
