// Package util holds small formatting helpers shared by the report and the UI.
package util

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration formats d with one decimal place of seconds so values don't
// jump in width while a run is in progress ("5.0s", not "5s").
func FormatDuration(d time.Duration) string {
	// Round first so 59.99s shows as "1m0.0s" instead of "59m60.0s"
	rounded := math.Round(d.Seconds()*10) / 10

	if rounded < 60 {
		return fmt.Sprintf("%.1fs", rounded)
	}
	if rounded < 3600 {
		mins := int(rounded) / 60
		secs := rounded - float64(mins*60)
		return fmt.Sprintf("%dm%.1fs", mins, secs)
	}
	hours := int(rounded) / 3600
	mins := (int(rounded) % 3600) / 60
	secs := rounded - float64(hours*3600+mins*60)
	return fmt.Sprintf("%dh%dm%.1fs", hours, mins, secs)
}

// Truncate shortens s to at most width runes, marking the cut with "…".
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

// FirstLine returns the first non-empty line of s.
func FirstLine(s string) string {
	for len(s) > 0 {
		i := 0
		for i < len(s) && s[i] != '\n' {
			i++
		}
		line := s[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if line != "" {
			return line
		}
		if i == len(s) {
			break
		}
		s = s[i+1:]
	}
	return ""
}
