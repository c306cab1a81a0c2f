package learning

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/features"
	"github.com/mikey/antispam/internal/rules"
)

// Kind identifies a feedback channel.
type Kind string

const (
	// KindWhitelist trusts a sender permanently.
	KindWhitelist Kind = "whitelist"
	// KindBlacklist blocks a sender permanently.
	KindBlacklist Kind = "blacklist"
	// KindNotSpam corrects a false positive on one message.
	KindNotSpam Kind = "not_spam"
	// KindIsSpam reports a missed spam message.
	KindIsSpam Kind = "is_spam"
)

// Feedback is one user report. Email carries the message for the
// message-level channels; the sender channels may supply only an address.
type Feedback struct {
	Kind   Kind
	Sender string
	Email  *core.Email
}

// Config holds the learning loop settings.
type Config struct {
	// RetrainThreshold is how many buffered samples trigger a retrain.
	RetrainThreshold int
	// MaxBuffer bounds the sample buffer; the oldest samples are dropped
	// past it.
	MaxBuffer int
}

// Loop turns user feedback into rule-list entries, cache overrides,
// sender-history updates and training samples, retraining the model once
// enough samples accumulate.
type Loop struct {
	rules   *rules.Lists
	cache   core.CacheStore
	history core.SenderHistory
	model   core.MLModel
	cfg     Config
	logger  *zap.Logger

	mu     sync.Mutex
	buffer []core.TrainingSample
}

// NewLoop wires the feedback loop to its stores.
func NewLoop(rules *rules.Lists, cache core.CacheStore, history core.SenderHistory, model core.MLModel, cfg Config, logger *zap.Logger) *Loop {
	if cfg.RetrainThreshold <= 0 {
		cfg.RetrainThreshold = 10
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = 500
	}
	return &Loop{
		rules:   rules,
		cache:   cache,
		history: history,
		model:   model,
		cfg:     cfg,
		logger:  logger,
	}
}

// Process applies one feedback report across every learning surface it
// touches, then retrains if the sample buffer has reached the threshold.
func (l *Loop) Process(fb Feedback) error {
	sender, domain, err := l.senderOf(fb)
	if err != nil {
		return err
	}

	switch fb.Kind {
	case KindWhitelist:
		if err := l.addListEntry(fb, sender, domain, false); err != nil {
			return err
		}
	case KindBlacklist:
		if err := l.addListEntry(fb, sender, domain, true); err != nil {
			return err
		}
	case KindNotSpam:
		if err := l.correctMessage(fb, sender, domain, false); err != nil {
			return err
		}
	case KindIsSpam:
		if err := l.correctMessage(fb, sender, domain, true); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown feedback kind %q", fb.Kind)
	}

	l.maybeRetrain()
	return nil
}

func (l *Loop) senderOf(fb Feedback) (sender, domain string, err error) {
	sender = strings.ToLower(strings.TrimSpace(fb.Sender))
	if fb.Email != nil {
		sender = fb.Email.SenderEmail
		domain = fb.Email.SenderDomain
	}
	if sender == "" {
		return "", "", fmt.Errorf("feedback %q has no sender", fb.Kind)
	}
	if domain == "" {
		if at := strings.LastIndex(sender, "@"); at >= 0 {
			domain = sender[at+1:]
		}
	}
	return sender, domain, nil
}

// addListEntry handles the sender-level channels. Whitelisting prefers
// the whole domain unless the sender uses a free-mail provider, where a
// domain rule would trust every account there. Blacklisting prefers the
// exact address unless the domain carries a suspicious TLD.
func (l *Loop) addListEntry(fb Feedback, sender, domain string, spam bool) error {
	item := sender
	if spam {
		if features.HasSuspiciousTLD(domain) {
			item = domain
		}
		if err := l.rules.AddToBlacklist(item); err != nil {
			return err
		}
	} else {
		if domain != "" && !features.IsFreeMailProvider(domain) {
			item = domain
		}
		if err := l.rules.AddToWhitelist(item); err != nil {
			return err
		}
	}

	if err := l.history.RecordFeedback(sender, domain, spam, time.Now()); err != nil {
		l.logger.Warn("Failed to record sender feedback", zap.Error(err))
	}
	// Sender-level feedback never pins the message itself: the rule entry
	// carries the verdict, and it stays revocable by removing the rule.
	// Only the training sample is kept.
	if fb.Email != nil {
		l.Collect(core.TrainingSample{
			Email:  fb.Email,
			IsSpam: spam,
			Source: core.SampleSourceUserFeedback,
		})
	}

	l.logger.Info("Added rule from feedback",
		zap.String("kind", string(fb.Kind)),
		zap.String("item", item))
	return nil
}

// correctMessage handles the message-level channels: a durable cache
// override for this exact message plus a weighted training sample.
func (l *Loop) correctMessage(fb Feedback, sender, domain string, spam bool) error {
	if fb.Email == nil {
		return fmt.Errorf("feedback %q requires the message content", fb.Kind)
	}

	if err := l.history.RecordFeedback(sender, domain, spam, time.Now()); err != nil {
		l.logger.Warn("Failed to record sender feedback", zap.Error(err))
	}
	l.overrideAndSample(fb.Email, spam)
	return nil
}

// overrideAndSample pins one exact message with a durable cache override
// and buffers it as a training sample. Message-level corrections only.
func (l *Loop) overrideAndSample(email *core.Email, spam bool) {
	action := core.ActionKeep
	reason := "user marked as not spam"
	if spam {
		action = core.ActionSpam
		reason = "user marked as spam"
	}
	if err := l.cache.PutOverride(email.Fingerprint(), action, reason); err != nil {
		l.logger.Warn("Failed to store cache override", zap.Error(err))
	}

	l.Collect(core.TrainingSample{
		Email:  email,
		IsSpam: spam,
		Source: core.SampleSourceUserFeedback,
	})
}

// Collect buffers one labeled sample, dropping the oldest past MaxBuffer.
// It also serves the pipeline's sample-collector port for confident
// external verdicts.
func (l *Loop) Collect(sample core.TrainingSample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, sample)
	if over := len(l.buffer) - l.cfg.MaxBuffer; over > 0 {
		l.buffer = append(l.buffer[:0:0], l.buffer[over:]...)
	}
}

// Pending returns the buffered sample count.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

func (l *Loop) maybeRetrain() {
	l.mu.Lock()
	ready := len(l.buffer) >= l.cfg.RetrainThreshold
	l.mu.Unlock()
	if !ready {
		return
	}
	if _, err := l.Retrain(); err != nil {
		l.logger.Warn("Retrain deferred", zap.Error(err))
	}
}

// Retrain trains the model on the buffered samples. The buffer is cleared
// only after a successful pass, so failed attempts keep their samples.
func (l *Loop) Retrain() (*core.TrainingResult, error) {
	l.mu.Lock()
	samples := append([]core.TrainingSample(nil), l.buffer...)
	l.mu.Unlock()

	result, err := l.model.TrainWithSamples(samples)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	// Drop exactly the samples that were trained on; anything collected
	// during training stays buffered.
	if len(samples) <= len(l.buffer) {
		l.buffer = append(l.buffer[:0:0], l.buffer[len(samples):]...)
	} else {
		l.buffer = nil
	}
	l.mu.Unlock()

	l.logger.Info("Retrained model from feedback",
		zap.Int("samples", result.SampleCount),
		zap.Float64("accuracy", result.Accuracy))
	return result, nil
}
