package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/configsync"
	"github.com/canmogol/archura-router/internal/filter"
	"github.com/canmogol/archura-router/internal/gateway"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/match"
	"github.com/canmogol/archura-router/internal/metrics"
	"github.com/canmogol/archura-router/internal/proxy"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Archura Router %s\n", version)
		os.Exit(0)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewWithOptions(logging.Options{
		Level:      settings.LogLevel,
		File:       settings.LogFile,
		MaxSizeMB:  settings.LogMaxSizeMB,
		MaxBackups: settings.LogMaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting router",
		zap.String("version", version),
		zap.String("listen_address", settings.ListenAddress),
		zap.String("configuration_server", settings.ConfigurationServerURL),
		zap.String("notification_server", settings.NotificationServerURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(settings.Bootstrap())
	m := metrics.New()

	fetcher := configsync.NewFetcher(store, m)
	synchronizer := configsync.NewSynchronizer(store, fetcher)
	go func() {
		if err := synchronizer.Run(ctx); err != nil && ctx.Err() == nil {
			logging.Error("configuration synchronizer stopped", zap.Error(err))
		}
	}()

	matcher := match.NewRouteMatcher(nil)
	registry := filter.NewRegistry(store, fetcher, matcher)
	relay := proxy.NewRelay(time.Duration(settings.DownstreamConnectionTimeout) * time.Millisecond)
	pipeline := filter.NewPipeline(store, registry, matcher, relay, m)

	server := gateway.NewServer(settings, pipeline, store, m, synchronizer.Ready)
	if err := server.Run(ctx); err != nil {
		logging.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logging.Info("router stopped")
}
