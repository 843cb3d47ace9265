package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtcore/mtcore/logging"
)

func TestSlogLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewSlogLogger(slog.NewTextHandler(&buf, nil))

	l.Info("node ready", "workers", 4, "domain", 1)
	out := buf.String()
	require.Contains(t, out, "node ready")
	require.Contains(t, out, "workers=4")
	require.Contains(t, out, "domain=1")
}

func TestSlogLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewSlogLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l.Debug("debugging")
	l.Warn("watch out")
	l.Error("broke")

	out := buf.String()
	require.Contains(t, out, "debugging")
	require.Contains(t, out, "watch out")
	require.Contains(t, out, "broke")
}

func TestSlogLogger_OddTrailingKeyIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewSlogLogger(slog.NewTextHandler(&buf, nil))

	require.NotPanics(t, func() {
		l.Info("partial", "onlykey")
	})
	require.Contains(t, buf.String(), "partial")
}
