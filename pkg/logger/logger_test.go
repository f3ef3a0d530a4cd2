package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2018, 11, 15, 0, 30, 26, 796_000_000, time.FixedZone("X", 3600))
	require.Equal(t, "2018-11-14T23:30:26.796Z", formatRFC3339Millis(ts))
}

func TestLogger_DropsEmptyStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Info("stage finished", "stage", "songs", "note", "")

	out := buf.String()
	require.Contains(t, out, "stage finished")
	require.Contains(t, out, "songs")
	require.NotContains(t, out, "note=")
}

func TestLogger_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var quiet, verbose bytes.Buffer
	NewWithWriter(&quiet, false).Debug("hidden")
	NewWithWriter(&verbose, true).Debug("shown")

	require.Empty(t, quiet.String())
	require.Contains(t, verbose.String(), "shown")
}
