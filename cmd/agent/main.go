package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigilcam/vigil-agent/internal/api"
	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/db"
	"github.com/vigilcam/vigil-agent/internal/engine"
	"github.com/vigilcam/vigil-agent/internal/logging"
	"github.com/vigilcam/vigil-agent/internal/notify"
	"github.com/vigilcam/vigil-agent/internal/retention"
	"github.com/vigilcam/vigil-agent/internal/source"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	dev := flag.Bool("dev", false, "run against a simulated frame source instead of the configured stream")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !*dev && cfg.StreamURL == "" {
		return fmt.Errorf("%s is required (or pass -dev for a simulated source)", config.EnvStreamURL)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting vigil agent",
		"version", config.Version,
		"data_dir", cfg.DataDir,
		"dev", *dev,
	)

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := retention.NewRepository(database.Conn())

	agentID, err := ensureAgentID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure agent ID: %w", err)
	}
	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                      VIGIL AGENT v0.1.0                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port)
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Agent ID:   %-45s ║\n", agentID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	manager, err := retention.NewManager(cfg, repo, logging.WithComponent(logger, "retention"))
	if err != nil {
		return fmt.Errorf("failed to initialize retention: %w", err)
	}
	if err := manager.Rebuild(context.Background()); err != nil {
		return fmt.Errorf("failed to rebuild clip registry: %w", err)
	}

	notifyLogger := logging.WithComponent(logger, "notify")
	var notifier notify.Notifier
	if cfg.TelegramEnabled() {
		notifier = notify.NewTelegram(cfg, notifyLogger)
		logger.Info("telegram notifications enabled")
	} else {
		notifier = notify.NewStub(notifyLogger)
		logger.Info("telegram not configured, notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sourceLogger := logging.WithComponent(logger, "source")
	clipLogger := logging.WithComponent(logger, "clip")
	var src source.Source
	var encoder clip.Encoder
	if *dev {
		src = source.NewSim(cfg.FrameWidth, cfg.FrameHeight, cfg.FPS).WithPacing()
		encoder = clip.NewStubEncoder(clipLogger)
	} else {
		ff := source.NewFFmpegSource(cfg, sourceLogger)
		if err := ff.Open(ctx); err != nil {
			return fmt.Errorf("failed to open frame source: %w", err)
		}
		src = ff
		encoder = clip.NewFFmpegEncoder(clipLogger)
	}
	defer src.Close()

	eng := engine.New(cfg, src, encoder, manager, notifier, logging.WithComponent(logger, "engine"))

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port,
		MaxVideoFiles: cfg.MaxVideoFiles,
		Pipeline:      eng,
		Clips:         manager,
		Repository:    repo,
		Logger:        logging.WithComponent(logger, "api"),
		StartTime:     startTime,
		AgentID:       agentID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-engineDone:
		if err != nil {
			logger.Error("pipeline stopped with error", "error", err)
		} else {
			logger.Info("pipeline stopped")
		}
		engineDone = nil
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	if engineDone != nil {
		if err := <-engineDone; err != nil {
			logger.Error("pipeline shutdown error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAgentID(repo retention.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "agent_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	agentID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "agent_id", agentID); err != nil {
		return "", err
	}

	return agentID, nil
}

func ensureAuthToken(repo retention.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
