package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/automoto/doomerang-netsync/config"
	"github.com/automoto/doomerang-netsync/logging"
	"github.com/automoto/doomerang-netsync/server/core"
	"github.com/automoto/doomerang-netsync/shared/leveldata"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	flag.StringVar(&cfg.UDPAddr, "udp", cfg.UDPAddr, "UDP listen address (empty disables)")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP listen address for /ws, /metrics and /healthz")
	flag.StringVar(&cfg.MapPath, "map", cfg.MapPath, "TMX map file (empty uses the default arena)")
	flag.IntVar(&cfg.NPCCount, "npcs", cfg.NPCCount, "Number of patrolling NPCs")
	flag.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "Maximum joined players")
	flag.DurationVar(&cfg.SessionTimeout, "timeout", cfg.SessionTimeout, "Idle session timeout")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	level := leveldata.Default()
	if cfg.MapPath != "" {
		level, err = leveldata.Load(os.DirFS(filepath.Dir(cfg.MapPath)), filepath.Base(cfg.MapPath))
		if err != nil {
			logger.Fatal("load map", zap.String("path", cfg.MapPath), zap.Error(err))
		}
	}

	srv := core.NewServer(level, core.Options{
		NPCCount:       cfg.NPCCount,
		MaxPlayers:     cfg.MaxPlayers,
		SessionTimeout: cfg.SessionTimeout,
	}, logger)
	if err := srv.Listen(cfg.UDPAddr, cfg.HTTPAddr); err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server starting",
		zap.String("map", level.Name),
		zap.String("udp", cfg.UDPAddr),
		zap.String("http", cfg.HTTPAddr),
		zap.Int("npcs", cfg.NPCCount))
	if err := srv.Serve(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
