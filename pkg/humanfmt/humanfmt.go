// Package humanfmt formats bytes, counts, durations, and throughput for
// human-facing log fields.
package humanfmt

import (
	"fmt"
	"strconv"
	"time"
)

// Binary (IEC) units.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

var byteUnits = []struct {
	limit  int64
	suffix string
}{
	{TiB, "TiB"},
	{GiB, "GiB"},
	{MiB, "MiB"},
	{KiB, "KiB"},
}

// Bytes formats a byte count using IEC units, e.g. "1.23 GiB".
func Bytes(b int64) string {
	for _, u := range byteUnits {
		if b >= u.limit {
			return fmt.Sprintf("%.2f %s", float64(b)/float64(u.limit), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", b)
}

// Throughput formats a rate like "123.40 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	return Bytes(int64(float64(bytes)/d.Seconds())) + "/s"
}

// Duration formats compactly: "1.23s", "250.0ms", "1m30s", "2h15m".
// Sub-millisecond durations fall back to the stdlib rendering.
func Duration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	switch {
	case d >= time.Hour:
		d = d.Round(time.Minute)
		h := d / time.Hour
		if m := (d % time.Hour) / time.Minute; m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	case d >= time.Minute:
		d = d.Round(time.Second)
		m := d / time.Minute
		if s := (d % time.Minute) / time.Second; s > 0 {
			return fmt.Sprintf("%dm%ds", m, s)
		}
		return fmt.Sprintf("%dm", m)
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	}
}

var countUnits = []struct {
	limit  int64
	suffix string
}{
	{1_000_000_000, "B"},
	{1_000_000, "M"},
	{1_000, "K"},
}

// Count abbreviates large counts: "1.23M", "1.50K", "789".
func Count(n int64) string {
	for _, u := range countUnits {
		if n >= u.limit {
			return fmt.Sprintf("%.2f%s", float64(n)/float64(u.limit), u.suffix)
		}
	}
	return strconv.FormatInt(n, 10)
}
