package core

import (
	"context"
	"time"
)

// ExternalClassifier is the expensive fallback (an LLM provider) consulted
// when every cheaper layer is undecided.
type ExternalClassifier interface {
	Classify(ctx context.Context, email *Email) (*Decision, error)
}

// CacheStore persists classifications keyed by message fingerprint.
type CacheStore interface {
	// Lookup returns the cached entry for a fingerprint, if any.
	Lookup(fingerprint string) (*CacheEntry, bool)

	// Put stores a computed (non-override) classification.
	Put(fingerprint string, entry *CacheEntry) error

	// PutOverride stores a permanent user correction for a fingerprint.
	PutOverride(fingerprint string, action Action, reason string) error
}

// RuleChecker answers whitelist/blacklist membership for a sender. The
// returned string describes the matching rule for the decision reason.
type RuleChecker interface {
	IsWhitelisted(senderEmail, senderDomain string) (string, bool)
	IsBlacklisted(senderEmail, senderDomain string) (string, bool)
}

// SenderHistory exposes per-sender feedback aggregates. Reads may serve a
// snapshot up to the store's TTL old; writes come only from the feedback
// loop, never from ordinary classification.
type SenderHistory interface {
	StatsFor(sender string) SenderStats
	RecordFeedback(sender, domain string, isSpam bool, now time.Time) error
}

// MLModel is the trained-or-untrained statistical classifier layer.
type MLModel interface {
	Classify(email *Email) *Decision
	TrainWithSamples(samples []TrainingSample) (*TrainingResult, error)
}

// SampleCollector receives labeled samples produced as a side effect of
// classification (cached verdicts, confident external verdicts).
type SampleCollector interface {
	Collect(sample TrainingSample)
}

// MessageSource yields message records from a mailbox and applies the
// dispositions the surrounding workflow decides on. The core never calls
// the move operations itself.
type MessageSource interface {
	Fetch(ctx context.Context) ([]*Email, error)
	MarkHandled(ctx context.Context, email *Email) error
	MoveToFolder(ctx context.Context, email *Email, folder string) error
}

// EmailFilter is a message entry point (SMTP content filter, CLI) that
// feeds messages through the pipeline.
type EmailFilter interface {
	ProcessEmail(ctx context.Context, email *Email) (*Decision, error)
	Start() error
	Stop() error
}
