package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chaos-io/clearbg/batch"
	"github.com/chaos-io/clearbg/config"
	"github.com/chaos-io/clearbg/rembg"
	"github.com/chaos-io/clearbg/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal("clearbg exited with error: ", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	loader := rembg.NewLoader(newProvider(cfg), logger.Named("rembg"))

	scheduler := cron.New()
	if cfg.Rembg.ReloadSchedule != "" {
		if _, err := loader.ScheduleReload(scheduler, cfg.Rembg.ReloadSchedule); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	processor := batch.NewProcessor(loader, batch.Options{
		MaxBatchSize: cfg.MaxBatchSize,
		MaxItemBytes: cfg.MaxFileSize(),
		ItemTimeout:  cfg.ItemTimeout,
	}, logger.Named("batch"))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(cfg, processor, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("clearbg listening",
			zap.String("addr", cfg.Addr()),
			zap.String("environment", cfg.Environment),
			zap.String("backend", cfg.Rembg.Backend),
			zap.Int("max_batch_size", cfg.MaxBatchSize),
		)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newProvider(cfg *config.Config) rembg.Provider {
	var provider rembg.Provider
	switch cfg.Rembg.Backend {
	case rembg.BackendNoop:
		provider = func(ctx context.Context) (rembg.Remover, error) {
			return rembg.NewNoopRemover(), nil
		}
	default:
		provider = rembg.NewHTTPProvider(rembg.HTTPConfig{
			Endpoint:  cfg.Rembg.URL,
			HealthURL: cfg.Rembg.HealthURL,
			Timeout:   cfg.Rembg.Timeout,
		}, nil)
	}

	return rembg.WrapProvider(provider,
		rembg.WithMaxSide(cfg.Rembg.MaxSide),
		rembg.WithSkipTransparent(cfg.Rembg.SkipTransparent),
	)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL invalid: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
