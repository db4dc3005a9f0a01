package loader

import (
	"strconv"
	"strings"
	"time"
)

// TimestampLayouts are tried in order when parsing a timestamp cell.
var TimestampLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04",
}

func isNull(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}

// String returns nil for an empty or "nan" cell.
func String(s string) *string {
	if isNull(s) {
		return nil
	}
	return &s
}

// Float parses a numeric cell. Unparseable values become nil.
func Float(s string) *float64 {
	if isNull(s) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

// Timestamp parses a timestamp cell and normalizes it to UTC. Values without
// an offset are taken as UTC. Unparseable values become nil.
func Timestamp(s string) *time.Time {
	if isNull(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
