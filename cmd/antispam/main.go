package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/di"
	"github.com/mikey/antispam/internal/learning"
	"github.com/mikey/antispam/internal/ml"
	"github.com/mikey/antispam/internal/stats"
)

func main() {
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	logger *zap.Logger,
	emailFilter core.EmailFilter,
	loop *learning.Loop,
	statsManager *stats.Manager,
	cacheStore core.CacheStore,
	external core.ExternalClassifier,
) error {
	defer logger.Sync()

	if err := emailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	// Nightly retrain sweeps up buffered samples that never hit the
	// threshold during the day.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("0 3 * * *", func() {
		result, err := loop.Retrain()
		if err != nil {
			if !isInsufficient(err) {
				logger.Warn("Scheduled retrain failed", zap.Error(err))
			}
			return
		}
		statsManager.RecordRetrain()
		logger.Info("Scheduled retrain complete",
			zap.Int("samples", result.SampleCount),
			zap.Float64("accuracy", result.Accuracy))
	}); err != nil {
		logger.Warn("Failed to schedule retrain job", zap.Error(err))
	}
	scheduler.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down...")

	scheduler.Stop()

	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}
	if closer, ok := external.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
	if closer, ok := cacheStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close cache", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

func isInsufficient(err error) bool {
	return errors.Is(err, ml.ErrInsufficientSamples)
}
