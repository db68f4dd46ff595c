package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pentestai/pentestai/pkg/config"
	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/logger"
	"github.com/pentestai/pentestai/pkg/provider"
	"github.com/pentestai/pentestai/relay"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a TOML config file")
	listenAddr := flag.String("listen", "", "Address to listen on (default :3000)")
	upstreamURL := flag.String("upstream", "", "Inference API base URL")
	dbPath := flag.String("db", "", `Record transcripts to this SQLite database, or "memory" (default: off)`)
	probe := flag.Bool("probe", false, "Probe the provider quota before each chat request")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrap := logger.NewLogger(*debug)
		bootstrap.Fatal("failed to load config", zap.Error(err))
	}

	// Flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listenAddr
		case "upstream":
			cfg.Upstream.BaseURL = *upstreamURL
		case "db":
			cfg.TranscriptDB = *dbPath
		case "probe":
			cfg.Probe.Enabled = *probe
		case "debug":
			cfg.Debug = *debug
		}
	})

	// Set up logger
	logger := logger.NewLogger(cfg.Debug)
	defer logger.Sync()

	cat, err := cfg.Catalog()
	if err != nil {
		logger.Fatal("invalid model table", zap.Error(err))
	}

	logger.Info("pentestai relay starting",
		zap.String("listen", cfg.Listen),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("default_model", cat.DefaultKey()),
		zap.Bool("debug", cfg.Debug),
	)

	temperature, topP, maxTokens := cfg.Upstream.Temperature, cfg.Upstream.TopP, cfg.Upstream.MaxTokens
	r, err := relay.New(relay.Config{
		ListenAddr: cfg.Listen,
		Provider: provider.Config{
			BaseURL: cfg.Upstream.BaseURL,
			Token:   cfg.Upstream.Token,
			Timeout: cfg.Upstream.Timeout.Duration,
			Retries: cfg.Upstream.Retries,
			Options: llm.Options{Temperature: &temperature, TopP: &topP, MaxTokens: &maxTokens},
		},
		Catalog:          cat,
		ProbeEnabled:     cfg.Probe.Enabled,
		ProbeURL:         cfg.Probe.URL,
		ProbeTTL:         cfg.Probe.TTL.Duration,
		ProbeThreshold:   cfg.Probe.Threshold,
		SystemPromptFile: cfg.SystemPromptFile,
		MaxHistory:       cfg.MaxHistory,
		TranscriptDB:     cfg.TranscriptDB,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create relay", zap.Error(err))
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("relay server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}
}
