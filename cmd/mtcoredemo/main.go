// Command mtcoredemo brings up an mtcore node from configuration and
// keeps it running until interrupted, in the teacher project's
// cmd/server shutdown-on-signal shape.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtcore/mtcore"
	"github.com/mtcore/mtcore/config"
	"github.com/mtcore/mtcore/logging"
)

func main() {
	logger := logging.NewSlogLogger(slog.NewJSONHandler(os.Stdout, nil))

	attrs, err := config.Load(os.Getenv("MTCORE_CONFIG"))
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	attrs = attrs.WithLogger(logger)

	if err := mtcore.Initialize(1, 1, attrs); err != nil {
		logger.Error("initialize failed", "err", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := mtcore.Finalize(); err != nil {
		logger.Error("finalize failed", "err", err)
		os.Exit(1)
	}
}
