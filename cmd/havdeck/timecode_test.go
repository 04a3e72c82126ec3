package main

import "testing"

func TestFormatTimecode(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{60, "00:01:00"},
		{90.7, "00:01:30"}, // fractional seconds floor
		{3600, "01:00:00"},
		{3725, "01:02:05"},
		{-12, "00:00:00"}, // negative clamps to zero
		{360000, "100:00:00"},
	}

	for _, c := range cases {
		if got := FormatTimecode(c.seconds); got != c.want {
			t.Errorf("FormatTimecode(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestParseTimecode_EmptyIsSentinel(t *testing.T) {
	got, err := ParseTimecode("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty input, got %v", *got)
	}

	got, err = ParseTimecode("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", *got)
	}
}

func TestParseTimecode_Values(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"90", 90},
		{"1.5", 1.5},
		{"0", 0},
		{"1:30", 90},
		{"01:02:05", 3725},
		{"2:00:00", 7200},
		{"0:0:5", 5},
		{" 10 ", 10},
	}

	for _, c := range cases {
		got, err := ParseTimecode(c.in)
		if err != nil {
			t.Errorf("ParseTimecode(%q) error: %v", c.in, err)
			continue
		}
		if got == nil {
			t.Errorf("ParseTimecode(%q) = nil, want %v", c.in, c.want)
			continue
		}
		if *got != c.want {
			t.Errorf("ParseTimecode(%q) = %v, want %v", c.in, *got, c.want)
		}
	}
}

func TestParseTimecode_Errors(t *testing.T) {
	cases := []string{
		"1:2:3:4", // too many fields
		"a",
		"1:b:3",
		"1::3", // empty field
		":30",
	}

	for _, in := range cases {
		if _, err := ParseTimecode(in); err == nil {
			t.Errorf("ParseTimecode(%q) expected error, got nil", in)
		}
	}
}

func TestTimecodeRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 5, 90, 3725, 86399} {
		text := FormatTimecode(seconds)
		parsed, err := ParseTimecode(text)
		if err != nil {
			t.Fatalf("round trip %v: %v", seconds, err)
		}
		if parsed == nil || *parsed != seconds {
			t.Fatalf("round trip %v via %q gave %v", seconds, text, parsed)
		}
	}
}
