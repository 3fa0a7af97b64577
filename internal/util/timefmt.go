package util

import (
	"fmt"
	"time"
)

// TimeLayout is the wall-clock layout used for both --at parsing and list
// output: "yyyy-mm-dd hh:mm:ss".
const TimeLayout = "2006-01-02 15:04:05"

// ArchiveTimeToUnix converts an archive timestamp (milliseconds since epoch)
// to whole seconds.
func ArchiveTimeToUnix(ms int64) int64 {
	return ms / 1000
}

// FormatArchiveTime renders an archive timestamp (milliseconds) for display.
// Times are treated as UTC so that output is stable across machines.
func FormatArchiveTime(ms int64) string {
	return time.Unix(ArchiveTimeToUnix(ms), 0).UTC().Format(TimeLayout)
}

// ParseTime parses a "yyyy-mm-dd hh:mm:ss" string into Unix seconds, using
// the same UTC convention as FormatArchiveTime.
func ParseTime(s string) (int64, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want \"yyyy-mm-dd hh:mm:ss\"): %w", s, err)
	}
	return t.Unix(), nil
}
