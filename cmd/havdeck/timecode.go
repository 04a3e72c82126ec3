package main

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Timecode utilities
// ============================================================================
// The device reports positions and durations as float seconds; hosts work in
// HH:MM:SS text. An empty string is a deliberate sentinel meaning "no time
// given" (load at start, or at the live edge for a live channel) and must
// survive parsing as nil rather than collapsing to zero.
// ============================================================================

// FormatTimecode renders seconds as HH:MM:SS. Fractional seconds are floored,
// negative inputs clamp to zero, hours are not wrapped.
func FormatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseTimecode parses a textual time into seconds.
//
// Accepted forms:
//   - ""           -> nil (the "unspecified" sentinel, not zero)
//   - "90" / "1.5" -> bare seconds
//   - "[[H:]M:]S"  -> colon-separated, parsed right-to-left
func ParseTimecode(text string) (*float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid timecode %q: too many fields", text)
	}

	var total float64
	mult := 1.0
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.TrimSpace(parts[i])
		if p == "" {
			return nil, fmt.Errorf("invalid timecode %q: empty field", text)
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timecode %q: %w", text, err)
		}
		total += v * mult
		mult *= 60
	}

	return &total, nil
}
