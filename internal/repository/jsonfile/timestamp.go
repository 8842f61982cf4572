package jsonfile

import (
	"encoding/json"
	"fmt"
	"time"
)

// Naive layouts written by the previous implementation (local time, no zone).
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// timestamp is written as RFC 3339 and read from RFC 3339 or a naive ISO form.
type timestamp struct {
	time.Time
}

func newTimestamp(t time.Time) timestamp { return timestamp{Time: t} }

func optionalTimestamp(t *time.Time) *timestamp {
	if t == nil {
		return nil
	}
	ts := newTimestamp(*t)
	return &ts
}

func (t timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", raw)
}

func (t *timestamp) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}
