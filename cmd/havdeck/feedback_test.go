package main

import (
	"testing"
	"time"
)

func TestFeedbackPredicates(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	s := NewDeviceState()
	s.Channels["ch1"] = &Channel{ID: "ch1", Duration: 100, LastDurationChange: t0}
	s.Channels["ch2"] = &Channel{ID: "ch2", Duration: 50}
	s.CurrentChannel = "ch1"
	s.Player.Playing = true

	if !FeedbackStreamingOn(s, "ch1", t0.Add(time.Second)) {
		t.Errorf("expected ch1 streaming")
	}
	if FeedbackStreamingOn(s, "ch2", t0) {
		t.Errorf("expected ch2 not streaming")
	}
	if FeedbackStreamingOn(s, "ch1", t0.Add(livenessWindow+time.Minute)) {
		t.Errorf("expected streaming to decay")
	}

	if !FeedbackActiveOn(s, "ch1") {
		t.Errorf("expected ch1 active")
	}
	if FeedbackActiveOn(s, "ch2") || FeedbackActiveOn(s, "") {
		t.Errorf("expected only the current channel active")
	}

	if !FeedbackPlayingOn(s) || FeedbackStoppedOn(s) {
		t.Errorf("expected playing, not stopped")
	}
	s.Player.Playing = false
	if FeedbackPlayingOn(s) || !FeedbackStoppedOn(s) {
		t.Errorf("expected stopped, not playing")
	}
}

func TestFeedbackCuepoints(t *testing.T) {
	s := NewDeviceState()
	s.Cuepoints[2] = Cuepoint{Channel: "ch1", Time: 30, Image: []byte{1}, Set: true}

	if !FeedbackCuepointOn(s, 3) {
		t.Errorf("expected slot 3 occupied")
	}
	if FeedbackCuepointOn(s, 1) {
		t.Errorf("expected slot 1 empty")
	}
	// Slots are 1-based; out-of-range queries are simply false.
	if FeedbackCuepointOn(s, 0) || FeedbackCuepointOn(s, cuepointSlots+1) {
		t.Errorf("out-of-range slots must report false")
	}

	if img := CuepointImage(s, 3); len(img) != 1 {
		t.Errorf("expected stored cuepoint image")
	}
	if img := CuepointImage(s, 1); img != nil {
		t.Errorf("expected nil image for empty slot")
	}
}

func TestActionAndFeedbackCatalogs(t *testing.T) {
	actions := allActionNames()
	feedbacks := allFeedbackNames()

	if len(actions) == 0 || len(feedbacks) == 0 {
		t.Fatalf("catalogs must not be empty")
	}

	// Every wire action name must round-trip through the envelope parser.
	for _, name := range actions {
		if name == "load_channel" || name == "skip" || name == "go_to_time" ||
			name == "set_cuepoint" || name == "recall_cuepoint" {
			continue // require payloads, covered in events tests
		}
		if _, err := UnmarshalAction([]byte(`{"type":"` + name + `"}`)); err != nil {
			t.Errorf("catalog action %q does not parse: %v", name, err)
		}
	}
}
