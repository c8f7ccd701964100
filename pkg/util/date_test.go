package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	for _, in := range []string{
		"2024-03-15T14:30:00Z",
		"2024-03-15T10:30:00-04:00",
		strconv.FormatInt(want.Unix(), 10),
		strconv.FormatInt(want.UnixMilli(), 10),
	} {
		got, ok := ParseTime(in)
		require.True(t, ok, in)
		assert.True(t, got.Equal(want), in)
		assert.Equal(t, time.UTC, got.Location(), in)
	}

	got, ok := ParseTime("2024-03-15T14:30:00.250Z")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, got.Sub(want))
}

func TestParseTimeRejects(t *testing.T) {
	for _, in := range []string{"", "yesterday", "-5", "0", "2024-03-15"} {
		_, ok := ParseTime(in)
		assert.False(t, ok, in)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
	assert.Equal(t, def, ParseTimeDefault("nope", def))
}
