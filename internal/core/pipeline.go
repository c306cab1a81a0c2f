package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Minimum confidence an external verdict needs before it is worth feeding
// back into the training buffer.
const externalSampleConfidence = 0.7

// PipelineConfig carries the thresholds and toggles the pipeline reads.
type PipelineConfig struct {
	// MLThreshold is the confidence above which an ML verdict is final.
	MLThreshold float64
	// UseExternal enables the LLM fallback for uncertain messages.
	UseExternal bool
}

// Pipeline sequences the four classifiers over one message: rule lists,
// cached overrides, the ML model, and the external fallback. Cheap and
// deterministic signals outrank expensive or probabilistic ones, and
// anything a human explicitly corrected outranks anything inferred.
type Pipeline struct {
	rules     RuleChecker
	cache     CacheStore
	ml        MLModel
	external  ExternalClassifier
	collector SampleCollector
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewPipeline creates a pipeline. external may be nil when no fallback
// provider is configured; collector may be nil when nothing consumes
// side-effect samples.
func NewPipeline(
	rules RuleChecker,
	cache CacheStore,
	ml MLModel,
	external ExternalClassifier,
	collector SampleCollector,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		rules:     rules,
		cache:     cache,
		ml:        ml,
		external:  external,
		collector: collector,
		cfg:       cfg,
		logger:    logger,
	}
}

// Classify runs one message through the pipeline, short-circuiting at the
// first definitive match. It never returns an error: every internal
// failure degrades to a KEEP decision.
func (p *Pipeline) Classify(ctx context.Context, email *Email) *Decision {
	// Rule lists first, whitelist before blacklist.
	if reason, ok := p.rules.IsWhitelisted(email.SenderEmail, email.SenderDomain); ok {
		return &Decision{
			Action:     ActionKeep,
			Reason:     fmt.Sprintf("WHITELIST: %s", reason),
			Confidence: 1.0,
			Method:     MethodWhitelist,
		}
	}
	if reason, ok := p.rules.IsBlacklisted(email.SenderEmail, email.SenderDomain); ok {
		return &Decision{
			Action:     ActionSpam,
			Reason:     fmt.Sprintf("BLACKLIST: %s", reason),
			Confidence: 1.0,
			Method:     MethodBlacklist,
		}
	}

	// A user override for this exact fingerprint beats every computed
	// classifier, including a confident ML verdict.
	fingerprint := email.Fingerprint()
	cached, cacheHit := p.cache.Lookup(fingerprint)
	if cacheHit && cached.Override {
		p.logger.Debug("Fingerprint override hit",
			zap.String("fingerprint", fingerprint[:8]),
			zap.String("action", string(cached.Action)))
		return &Decision{
			Action:     cached.Action,
			Reason:     fmt.Sprintf("User feedback: %s", cached.Reason),
			Confidence: 1.0,
			Method:     MethodUserFeedback,
		}
	}

	// ML verdict is final when confident enough.
	mlDecision := p.ml.Classify(email)
	if mlDecision.Confidence > p.cfg.MLThreshold {
		return mlDecision
	}

	if !p.cfg.UseExternal {
		return &Decision{
			Action:     ActionKeep,
			Reason:     "Uncertain classification, keeping email",
			Confidence: 0.5,
			Method:     MethodDefault,
		}
	}

	// A prior computed verdict for this fingerprint stands in for calling
	// the external classifier again. It still feeds the training buffer.
	if cacheHit {
		p.collect(TrainingSample{
			Email:  email,
			IsSpam: cached.Action == ActionSpam,
			Source: SampleSourceDefault,
		})
		return &Decision{
			Action:     cached.Action,
			Reason:     fmt.Sprintf("%s (cached)", cached.Reason),
			Confidence: cached.Confidence,
			Method:     MethodCache,
		}
	}

	return p.classifyExternal(ctx, email, fingerprint)
}

func (p *Pipeline) classifyExternal(ctx context.Context, email *Email, fingerprint string) *Decision {
	if p.external == nil {
		return &Decision{
			Action:     ActionKeep,
			Reason:     "No external classifier configured",
			Confidence: 0.5,
			Method:     MethodDefault,
		}
	}

	decision, err := p.external.Classify(ctx, email)
	if err != nil {
		// Fail open: an internal error must never turn into SPAM.
		p.logger.Error("External classification failed",
			zap.Error(err),
			zap.String("sender", email.SenderEmail))
		return &Decision{
			Action:     ActionKeep,
			Reason:     fmt.Sprintf("External classifier error: %v", err),
			Confidence: 0.5,
			Method:     MethodDefault,
		}
	}

	if err := p.cache.Put(fingerprint, &CacheEntry{
		Action:     decision.Action,
		Reason:     decision.Reason,
		Confidence: decision.Confidence,
		Method:     decision.Method,
		Timestamp:  time.Now(),
	}); err != nil {
		p.logger.Error("Failed to cache external verdict", zap.Error(err))
	}

	if decision.Confidence >= externalSampleConfidence {
		p.collect(TrainingSample{
			Email:  email,
			IsSpam: decision.Action == ActionSpam,
			Source: SampleSourceDefault,
		})
	}

	return decision
}

func (p *Pipeline) collect(sample TrainingSample) {
	if p.collector != nil {
		p.collector.Collect(sample)
	}
}
