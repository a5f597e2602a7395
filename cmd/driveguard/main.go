package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driveguard/internal/api"
	"driveguard/internal/config"
	"driveguard/internal/engine"
	"driveguard/internal/feed"
	"driveguard/internal/logging"
	"driveguard/internal/logstore"
	"driveguard/internal/model"
	"driveguard/internal/notifier"
	"driveguard/internal/publisher"
	"driveguard/internal/recorder"
	"driveguard/internal/retention"
	"driveguard/internal/storage"
	"driveguard/internal/vision"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "config/driveguard.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	mgr, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.NewLogger("info").Error("config load failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()

	level := cfg.LogLevel
	if *debug {
		level = "debug"
	}
	logger := logging.NewLogger(level)
	slog.SetDefault(logger)
	logger.Info("starting driveguard", "version", version, "config", *configPath)

	store, err := logstore.Open(cfg.LogStore.Path, logging.Component(logger, "logstore"))
	if err != nil {
		logger.Error("accident log open failed", "path", cfg.LogStore.Path, "err", err)
		os.Exit(1)
	}

	var port notifier.Port
	if cfg.Hardware.Enabled {
		port = notifier.OpenPort(cfg.Hardware.Port, logging.Component(logger, "notifier"))
	}
	hw := notifier.New(port, logging.Component(logger, "notifier"))
	store.SetHardwareConnected(hw.Connected())

	mirror, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage mirror init failed", "err", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if mirror != nil {
		if err := mirror.Init(ctx); err != nil {
			logger.Error("storage mirror schema init failed", "err", err)
			os.Exit(1)
		}
	}

	pub := publisher.New(cfg.Publisher, logging.Component(logger, "publisher"))

	eval := vision.NewEvaluator(cfg.Detection.EARThreshold, cfg.Detection.Epsilon, cfg.Detection.NoLandmarkFrames)
	rec := recorder.New(cfg.Recording, cfg.Camera, recorder.FileOpener{}, store, hw, logging.Component(logger, "recorder"))
	monitor := engine.NewMonitor(cfg, logging.Component(logger, "engine"), eval, rec, hw, mirror, pub)

	frames := make(chan model.Frame, cfg.Feed.ChannelBuffer)
	if err := feed.StartDetector(ctx, mgr, frames, logging.Component(logger, "feed")); err != nil {
		logger.Error("detector feed start failed", "err", err)
		os.Exit(1)
	}
	feed.StartTCPStream(ctx, mgr, frames, logging.Component(logger, "feed"))

	api.Start(ctx, mgr, store, monitor, logging.Component(logger, "api"), version)

	stopWatch := make(chan struct{})
	go mgr.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded")
			monitor.UpdateConfig(next)
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		stopWatch,
	)

	go monitor.Run(ctx, frames)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())

	close(stopWatch)
	cancel()

	// An open session must be documented before resources are released.
	monitor.Shutdown(time.Now())
	if err := store.Close(); err != nil {
		logger.Warn("accident log final flush failed", "err", err)
	}
	_ = hw.Close()
	if mirror != nil {
		_ = mirror.Close()
	}
	_ = pub.Close()

	retention.Sweep(cfg.Recording.Dir, time.Duration(cfg.Recording.RetentionDays)*24*time.Hour, logging.Component(logger, "retention"))
	logger.Info("driveguard stopped")
}
