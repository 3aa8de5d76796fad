package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	relay "github.com/goliatone/go-relay"
	"github.com/goliatone/go-relay/adapters/gologger"
	"github.com/goliatone/go-relay/core"
)

func main() {
	logger := gologger.NewLogrusLogger(core.DefaultLogLevel, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	app, err := relay.Setup(ctx, relay.Config{},
		relay.WithConfigProvider(core.NewCfgxConfigProvider(core.NewEnvConfigLoader())),
		relay.WithLogger(logger),
		relay.WithLoggerProvider(gologger.NewLogrusProvider(logger)),
	)
	if err != nil {
		logger.Error("relay setup failed", "error", err.Error())
		os.Exit(1)
	}
	logger.SetLevel(app.Service.Config().Logging.Level)
	if app.Listener == nil {
		logger.Info("gateway token not set, message listener disabled")
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("relay stopped with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func setupGracefulShutdown(cancel context.CancelFunc, logger core.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("received signal, shutting down", "signal", s.String())
		cancel()
	}()
}
