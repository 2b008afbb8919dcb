package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 1, 12, 30, 45, 123_456_789, time.FixedZone("CET", 3600))
	require.Equal(t, "2025-03-01T11:30:45.123Z", formatRFC3339Millis(ts))
}

func TestLogger_NewWithWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Debug("hidden")
	log.Info("store: connected", "dialect", "duckdb", "empty", "")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "store: connected")
	require.Contains(t, out, "duckdb")
	require.NotContains(t, out, "empty=")

	buf.Reset()
	NewWithWriter(&buf, true).Debug("shown")
	require.Contains(t, buf.String(), "shown")
}
