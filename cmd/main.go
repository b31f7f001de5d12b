package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"majlis-chat/internal/cli"
	"majlis-chat/internal/config"
	"majlis-chat/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New("majlis-chat", cfg.Environment)
	slog.SetDefault(logger)

	// Recover so a panic is logged instead of dumping a bare stack.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("application recovered from panic", slog.Any("panic", r))
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
