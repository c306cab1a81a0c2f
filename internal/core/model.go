package core

import (
	"net/textproto"
	"strings"
	"time"
)

// Action is the disposition the pipeline assigns to a message.
type Action string

const (
	ActionKeep Action = "KEEP"
	ActionSpam Action = "SPAM"
)

// Detection method tags carried on a Decision.
const (
	MethodWhitelist     = "whitelist"
	MethodBlacklist     = "blacklist"
	MethodUserFeedback  = "user_feedback"
	MethodMLForest      = "ml_random_forest"
	MethodMLMarketing   = "ml_marketing"
	MethodMLUnavailable = "ml_unavailable"
	MethodCache         = "cache"
	MethodDefault       = "default"
)

// Email is an immutable view of one message for classification purposes.
// It is never mutated after construction.
type Email struct {
	SenderEmail  string
	SenderDomain string
	Subject      string
	Body         string
	Headers      map[string][]string
	ReceivedAt   time.Time
}

// NewEmail builds an Email, deriving the sender domain from the address
// when it is not supplied.
func NewEmail(sender, subject, body string, headers map[string][]string, receivedAt time.Time) *Email {
	sender = strings.ToLower(strings.TrimSpace(sender))
	domain := ""
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain = sender[at+1:]
	}
	return &Email{
		SenderEmail:  sender,
		SenderDomain: domain,
		Subject:      subject,
		Body:         body,
		Headers:      headers,
		ReceivedAt:   receivedAt,
	}
}

// Header returns the value of a header, flattening multi-valued headers
// with "; " the way the feature extractor expects them.
func (e *Email) Header(name string) string {
	if e.Headers == nil {
		return ""
	}
	values := e.Headers[name]
	if len(values) == 0 {
		// Parsed messages carry canonicalized keys ("Message-Id", not
		// "Message-ID").
		values = e.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	}
	if len(values) == 0 {
		return ""
	}
	if len(values) == 1 {
		return values[0]
	}
	return strings.Join(values, "; ")
}

// Decision is the outcome of classifying one message.
type Decision struct {
	Action     Action
	Reason     string
	Confidence float64
	Method     string
}

// IsSpam reports whether the decision routes the message to the spam folder.
func (d *Decision) IsSpam() bool {
	return d.Action == ActionSpam
}

// CacheEntry is a persisted classification keyed by message fingerprint.
// Override entries come from explicit user correction: they never expire
// and always win over computed results on lookup.
type CacheEntry struct {
	Action     Action    `json:"action"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
	Override   bool      `json:"override"`
	Timestamp  time.Time `json:"timestamp"`
}

// Training sample source tags.
const (
	SampleSourceDefault      = "default"
	SampleSourceUserFeedback = "user_feedback"
)

// TrainingSample is one labeled message queued for retraining.
type TrainingSample struct {
	Email  *Email
	IsSpam bool
	Source string
}

// TrainingResult reports the outcome of a training pass.
type TrainingResult struct {
	Accuracy    float64
	SampleCount int
	SpamCount   int
	HamCount    int
	WeightMean  float64
	WeightMax   float64
	// Degenerate is set when the sample set was too small for a held-out
	// split and the model was evaluated on its own training data.
	Degenerate bool
}

// SenderStats aggregates past user feedback for one sender address.
type SenderStats struct {
	SpamCount int       `json:"spam_count"`
	HamCount  int       `json:"ham_count"`
	FirstSeen time.Time `json:"first_seen,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
}

// Total returns the number of feedback events recorded for the sender.
func (s SenderStats) Total() int {
	return s.SpamCount + s.HamCount
}

// SpamRatio returns spam/(spam+ham), or 0 for an unseen sender.
func (s SenderStats) SpamRatio() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.SpamCount) / float64(total)
}
