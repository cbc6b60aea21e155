package stream

import (
	"testing"
	"time"
)

// go test -v --run TestParseTimestampFormats
func TestParseTimestampFormats(t *testing.T) {
	// The same instant in every encoding the feed produces.
	want := time.Date(2026, 3, 15, 14, 30, 5, 0, time.UTC)

	cases := []struct {
		name  string
		value any
	}{
		{"epoch float", float64(want.Unix())},
		{"epoch int64", want.Unix()},
		{"epoch string", "1773585005"},
		{"iso zulu", "2026-03-15T14:30:05Z"},
		{"iso offset", "2026-03-15T09:30:05-05:00"},
		{"iso naive", "2026-03-15T14:30:05"},
		{"space separated naive", "2026-03-15 14:30:05"},
		{"time.Time", want},
	}

	for _, tc := range cases {
		got, err := ParseTimestamp(tc.value)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if got.Location() != time.UTC {
			t.Errorf("%s: result not UTC: %v", tc.name, got.Location())
		}
		if d := got.Sub(want); d > time.Second || d < -time.Second {
			t.Errorf("%s: got %v, want %v", tc.name, got, want)
		}
	}
}

// go test -v --run TestParseTimestampFractional
func TestParseTimestampFractional(t *testing.T) {
	got, err := ParseTimestamp("2026-03-15T14:30:05.123456789Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Nanosecond() != 123456789 {
		t.Errorf("fractional seconds lost: %v", got)
	}
}

// go test -v --run TestParseTimestampNaiveIsUTC
func TestParseTimestampNaiveIsUTC(t *testing.T) {
	naive, err := ParseTimestamp("2026-03-15T14:30:05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zulu, err := ParseTimestamp("2026-03-15T14:30:05Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !naive.Equal(zulu) {
		t.Errorf("naive timestamp not treated as UTC: %v != %v", naive, zulu)
	}
}

// go test -v --run TestParseTimestampRejects
func TestParseTimestampRejects(t *testing.T) {
	cases := []struct {
		name  string
		value any
	}{
		{"garbage", "not-a-date"},
		{"empty string", ""},
		{"zero epoch", float64(0)},
		{"negative epoch", -1},
		{"zero time", time.Time{}},
		{"nil", nil},
		{"bool", true},
	}
	for _, tc := range cases {
		if _, err := ParseTimestamp(tc.value); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

// go test -v --run TestParseDataType
func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("  Trades ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dt != DataTypeTrade {
		t.Errorf("got %q, want %q", dt, DataTypeTrade)
	}
	if _, err := ParseDataType("klines"); err == nil {
		t.Error("expected error for unknown data type")
	}
}
