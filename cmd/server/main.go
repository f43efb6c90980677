package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/readleaf/readleaf/internal/api"
	"github.com/readleaf/readleaf/internal/bookinfo"
	"github.com/readleaf/readleaf/internal/config"
	"github.com/readleaf/readleaf/internal/convert"
	"github.com/readleaf/readleaf/internal/pipeline"
	"github.com/readleaf/readleaf/internal/store"
	"github.com/readleaf/readleaf/internal/textgen"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}

	// Initialize external-service clients.
	converter := convert.NewGateway(cfg.MinerUAPIKey, cfg.MinerUBaseURL, cfg.ConvertDir,
		cfg.ConvertTimeout, cfg.ConvertLocalFallback, log)
	gen := textgen.NewClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel, cfg.TextGenTimeout)
	extractor := bookinfo.NewExtractor(gen, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(st, converter, extractor, log, pipeline.Config{
		WorkerCount:  cfg.WorkerCount,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
	})
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, st, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		gen.Close()
		if err := st.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}()

	log.Info("starting readleaf", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
