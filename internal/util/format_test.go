package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{"zero", 0, "0.0s"},
		{"sub-second", 500 * time.Millisecond, "0.5s"},
		{"rounds to one decimal", 5550 * time.Millisecond, "5.6s"},
		{"just under a minute", 59900 * time.Millisecond, "59.9s"},
		{"rounds into minutes", 59990 * time.Millisecond, "1m0.0s"},
		{"minutes", 90 * time.Second, "1m30.0s"},
		{"hours", time.Hour + 2*time.Minute + 3*time.Second, "1h2m3.0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.d))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s        string
		width    int
		expected string
	}{
		{"test_orient", 20, "test_orient"},
		{"test_orient", 6, "test_…"},
		{"test_orient", 1, "…"},
		{"test_orient", 0, ""},
		{"ジョイント", 3, "ジョ…"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Truncate(tt.s, tt.width), tt.s)
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Traceback (most recent call last):", FirstLine("\n\r\nTraceback (most recent call last):\n  File"))
	assert.Equal(t, "AssertionError", FirstLine("AssertionError"))
	assert.Equal(t, "", FirstLine("\n\n"))
}
