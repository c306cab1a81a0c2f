package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/config"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/factory"
	"github.com/mikey/antispam/internal/features"
	"github.com/mikey/antispam/internal/history"
	"github.com/mikey/antispam/internal/learning"
	"github.com/mikey/antispam/internal/logging"
	"github.com/mikey/antispam/internal/ml"
	"github.com/mikey/antispam/internal/rules"
	"github.com/mikey/antispam/internal/stats"
	"github.com/mikey/antispam/internal/utils"
)

// BuildContainer wires the application graph, leaves first: stores and
// the extractor, then the classifiers, then the pipeline and its entry
// points.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		config.New,
		logging.InitLogger,
		utils.NewTextProcessor,

		func(cfg *config.Config, logger *zap.Logger) *history.Store {
			ttl, err := cfg.GetDuration("learning.history_ttl")
			if err != nil {
				ttl = history.DefaultTTL
			}
			return history.NewStore(cfg.GetString("data.dir"), ttl, logger)
		},
		func(store *history.Store) core.SenderHistory { return store },

		func(cfg *config.Config, logger *zap.Logger) *rules.Lists {
			return rules.NewLists(cfg.GetString("data.dir"), logger)
		},

		func(store *history.Store) *features.Extractor {
			return features.NewExtractor(store)
		},

		func(extractor *features.Extractor, store *history.Store, cfg *config.Config, logger *zap.Logger) *ml.Classifier {
			return ml.NewClassifier(extractor, store, ml.Config{
				ArtifactPath:       cfg.GetString("data.model_path"),
				MarketingEnabled:   cfg.GetBool("detection.marketing.enabled"),
				MarketingThreshold: cfg.GetFloat64("detection.marketing.threshold"),
			}, logger)
		},
		func(classifier *ml.Classifier) core.MLModel { return classifier },

		factory.NewCacheStore,

		func(cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) (core.ExternalClassifier, error) {
			return factory.NewExternalClassifier(context.Background(), cfg, text, logger)
		},

		func(cfg *config.Config, logger *zap.Logger) *stats.Manager {
			return stats.NewManager(cfg.GetString("data.dir"), logger)
		},

		func(lists *rules.Lists, cacheStore core.CacheStore, store *history.Store, model core.MLModel, cfg *config.Config, logger *zap.Logger) *learning.Loop {
			return learning.NewLoop(lists, cacheStore, store, model, learning.Config{
				RetrainThreshold: cfg.GetInt("learning.retrain_threshold"),
				MaxBuffer:        cfg.GetInt("learning.max_buffer"),
			}, logger)
		},
		func(loop *learning.Loop) core.SampleCollector { return loop },

		func(
			lists *rules.Lists,
			cacheStore core.CacheStore,
			model core.MLModel,
			external core.ExternalClassifier,
			collector core.SampleCollector,
			cfg *config.Config,
			logger *zap.Logger,
		) *core.Pipeline {
			return core.NewPipeline(lists, cacheStore, model, external, collector, core.PipelineConfig{
				MLThreshold: cfg.GetFloat64("detection.ml_confidence_threshold"),
				UseExternal: cfg.GetBool("detection.use_llm_for_uncertain"),
			}, logger)
		},

		factory.NewEmailFilter,
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}
	return container, nil
}
