package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/mikey/antispam/internal/core"
)

// Throttled wraps an external classifier with a request rate limit, so a
// burst of uncertain messages cannot flood the provider.
type Throttled struct {
	inner   core.ExternalClassifier
	limiter *rate.Limiter
}

// NewThrottled limits inner to requestsPerMinute, with a burst of one.
func NewThrottled(inner core.ExternalClassifier, requestsPerMinute int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
	}
}

// Classify waits for a rate token, honoring context cancellation, then
// delegates to the wrapped classifier.
func (t *Throttled) Classify(ctx context.Context, email *core.Email) (*core.Decision, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Classify(ctx, email)
}
