package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "never", FormatTime(time.Time{}))
	assert.True(t, strings.HasPrefix(FormatTime(time.Now()), "today at "))
	assert.Equal(t, "Mar 4, 2001 at 10:30", FormatTime(time.Date(2001, 3, 4, 10, 30, 0, 0, time.Local)))
}

func TestFormatHit(t *testing.T) {
	out := FormatHit(2, "notes/a.md", 0.5)
	assert.Contains(t, out, "[2]")
	assert.Contains(t, out, "notes/a.md")
	assert.Contains(t, out, "50.0% match")
}

func TestHorizontalRule(t *testing.T) {
	assert.Contains(t, HorizontalRule(3), "───")
	assert.NotPanics(t, func() { HorizontalRule(-1) })
}
