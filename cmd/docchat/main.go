package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luminalhq/docchat/internal/config"
	"github.com/luminalhq/docchat/internal/embeddings"
	"github.com/luminalhq/docchat/internal/health"
	"github.com/luminalhq/docchat/internal/httpapi"
	"github.com/luminalhq/docchat/internal/ingest"
	"github.com/luminalhq/docchat/internal/llm"
	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/objstore"
	"github.com/luminalhq/docchat/internal/qa"
	"github.com/luminalhq/docchat/internal/registry"
	"github.com/luminalhq/docchat/internal/search"
	"github.com/luminalhq/docchat/internal/vectordb"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return model.ExitCode(fmt.Errorf("%w: %v", model.ErrInvalidQuery, err))
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := vectordb.NewClient(vectordb.Config{
		BaseURL:    cfg.VectorStoreURL,
		APIVersion: cfg.VectorStoreAPIVersion,
		Timeout:    cfg.VectorStoreTimeout,
	}, logger)

	if err := store.Heartbeat(ctx); err != nil {
		logger.Error("vector store unreachable", zap.String("url", cfg.VectorStoreURL), zap.Error(err))
		return model.ExitCode(err)
	}
	for _, collection := range model.AllCollections() {
		if err := store.EnsureCollection(ctx, collection); err != nil {
			logger.Error("collection setup failed", zap.String("collection", collection), zap.Error(err))
			return model.ExitCode(err)
		}
	}

	embedder := embeddings.NewClient(embeddings.Config{
		BaseURL:   cfg.EmbeddingBaseURL,
		APIKey:    cfg.EmbeddingAPIKey,
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDim,
		BatchSize: cfg.EmbeddingBatchSize,
		Timeout:   cfg.EmbeddingTimeout,
		RedisAddr: cfg.EmbeddingCacheRedisAddr,
		DemoMode:  cfg.DemoMode,
	}, logger)

	completer := llm.NewClient(llm.Config{
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.ChatModel,
		Timeout:  cfg.LLMTimeout,
		DemoMode: cfg.DemoMode,
	}, logger)

	catalog := registry.New(logger)
	if err := catalog.Rebuild(ctx, store); err != nil {
		logger.Error("registry rebuild failed", zap.Error(err))
		return model.ExitCode(err)
	}

	var mirror ingest.Mirror
	if cfg.S3Enabled() {
		m, err := objstore.NewS3Mirror(ctx, cfg.S3Bucket, cfg.AWSRegion, logger)
		if err != nil {
			logger.Warn("s3 mirror disabled", zap.Error(err))
		} else {
			mirror = m
		}
	}

	ingester := ingest.NewService(embedder, completer, store, catalog, ingest.Options{
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		SummaryConcurrency: cfg.SummaryConcurrency,
		Mirror:             mirror,
	}, logger)

	cache := search.NewCache(cfg.SearchCacheCapacity, cfg.SearchCacheTTL)
	engine := search.NewEngine(embedder, store, catalog, cache, logger)
	asker := qa.NewOrchestrator(completer, engine, store, cache, cfg.MaxChunks, cfg.CitationThreshold, logger)

	checks := health.NewManager(5 * time.Second)
	checks.Register(health.CheckFunc{
		ComponentName: "vector_store",
		IsCritical:    true,
		Fn:            store.Heartbeat,
	})
	checks.Register(health.CheckFunc{
		ComponentName: "embedding",
		Fn:            embedder.Ping,
	})
	checks.Register(health.CheckFunc{
		ComponentName: "llm",
		Fn:            completer.Ping,
	})

	server := httpapi.NewServer(ingester, engine, asker, catalog, checks, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.ListenAddr()),
			zap.Bool("demo_mode", cfg.DemoMode))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			return model.ExitCode(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
