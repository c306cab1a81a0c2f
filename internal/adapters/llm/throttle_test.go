package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/antispam/internal/core"
)

type countingClassifier struct {
	calls int
}

func (c *countingClassifier) Classify(context.Context, *core.Email) (*core.Decision, error) {
	c.calls++
	return &core.Decision{Action: core.ActionKeep, Confidence: 0.9, Method: "llm_test"}, nil
}

func TestThrottledDelegates(t *testing.T) {
	inner := &countingClassifier{}
	throttled := NewThrottled(inner, 600)

	d, err := throttled.Classify(context.Background(), core.NewEmail("a@b.com", "s", "b", nil, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, core.ActionKeep, d.Action)
	assert.Equal(t, 1, inner.calls)
}

func TestThrottledHonorsCancellation(t *testing.T) {
	inner := &countingClassifier{}
	// Burst of one: the second call has to wait about a minute.
	throttled := NewThrottled(inner, 1)

	ctx := context.Background()
	_, err := throttled.Classify(ctx, core.NewEmail("a@b.com", "s", "b", nil, time.Now()))
	require.NoError(t, err)

	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = throttled.Classify(cancelled, core.NewEmail("a@b.com", "s", "b", nil, time.Now()))
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls, "a cancelled wait never reaches the provider")
}
