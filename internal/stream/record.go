package stream

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DataType identifies the kind of market data a record carries.
type DataType string

const (
	DataTypeTrade DataType = "trades"
	DataTypeQuote DataType = "quotes"
	DataTypeBar   DataType = "bars"
)

var validDataTypes = map[DataType]bool{
	DataTypeTrade: true,
	DataTypeQuote: true,
	DataTypeBar:   true,
}

// ParseDataType validates a data type string received from callers.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	if !validDataTypes[dt] {
		return "", fmt.Errorf("invalid data type: %q", s)
	}
	return dt, nil
}

// Record is a single observation delivered by the push feed.
// It is immutable once appended to a buffer.
type Record struct {
	Symbol    string         `json:"symbol"`
	DataType  DataType       `json:"data_type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// ErrUnparsableTimestamp is returned when a record's timestamp cannot be
// normalized. Callers drop the record; they must never substitute zero or now.
var ErrUnparsableTimestamp = errors.New("unparsable timestamp")

var offsetSuffix = regexp.MustCompile(`[+-]\d{2}:\d{2}$`)

// ParseTimestamp normalizes the timestamp representations seen on the feed
// into a UTC instant. Accepted forms, tried in order:
//
//  1. Unix epoch seconds as a number or numeric string (fractional allowed)
//  2. ISO-8601 ending in "Z"
//  3. ISO-8601 with an explicit [+-]HH:MM offset
//  4. ISO-8601 with no offset, assumed UTC
func ParseTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, ErrUnparsableTimestamp
		}
		return v.UTC(), nil
	case float64:
		return epochToTime(v)
	case int64:
		return epochToTime(float64(v))
	case int:
		return epochToTime(float64(v))
	case string:
		return parseTimestampString(v)
	default:
		return time.Time{}, ErrUnparsableTimestamp
	}
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparsableTimestamp
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToTime(f)
	}

	if strings.HasSuffix(s, "Z") || offsetSuffix.MatchString(s) {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		return time.Time{}, ErrUnparsableTimestamp
	}

	// No offset information: assume UTC.
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparsableTimestamp
}

func epochToTime(sec float64) (time.Time, error) {
	if sec <= 0 {
		return time.Time{}, ErrUnparsableTimestamp
	}
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))).UTC(), nil
}
