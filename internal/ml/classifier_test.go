package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/features"
)

type stubHistory struct {
	stats map[string]core.SenderStats
}

func (h *stubHistory) StatsFor(sender string) core.SenderStats {
	if h.stats == nil {
		return core.SenderStats{}
	}
	return h.stats[sender]
}

func (h *stubHistory) RecordFeedback(_, _ string, _ bool, _ time.Time) error {
	return nil
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(
		features.NewExtractor(nil),
		&stubHistory{},
		Config{
			ArtifactPath:       filepath.Join(t.TempDir(), "spam_model.gob"),
			MarketingEnabled:   true,
			MarketingThreshold: 0.6,
		},
		zap.NewNop(),
	)
}

func TestNewClassifierTrainsFromDefaults(t *testing.T) {
	c := newTestClassifier(t)

	decision := c.Classify(core.NewEmail("someone@example.com", "Hello", "Quick question about the meeting.", nil, time.Now()))
	require.NotNil(t, decision)
	assert.NotEqual(t, core.MethodMLUnavailable, decision.Method, "default training must leave a usable model")
	assert.Greater(t, decision.Confidence, 0.0)
}

func TestTrainingFloor(t *testing.T) {
	c := newTestClassifier(t)
	before := c.Classify(core.NewEmail("a@b.com", "s", "b", nil, time.Now()))

	_, err := c.TrainWithSamples(DefaultSamples()[:5])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientSamples))

	after := c.Classify(core.NewEmail("a@b.com", "s", "b", nil, time.Now()))
	assert.Equal(t, before.Action, after.Action, "a refused training pass must leave the model untouched")
	assert.NotEqual(t, core.MethodMLUnavailable, after.Method)
}

func TestTrainWithSamplesResult(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.TrainWithSamples(DefaultSamples())
	require.NoError(t, err)
	assert.Equal(t, 10, result.SampleCount)
	assert.Equal(t, 5, result.SpamCount)
	assert.Equal(t, 5, result.HamCount)
	assert.True(t, result.Degenerate, "ten samples are below the holdout floor")
	assert.Equal(t, 1.0, result.WeightMean, "default samples carry unit weight")
	assert.Equal(t, 1.0, result.WeightMax)
}

func TestSchemaSelfHeal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spam_model.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob artifact"), 0o644))

	c := NewClassifier(features.NewExtractor(nil), &stubHistory{}, Config{ArtifactPath: path}, zap.NewNop())

	decision := c.Classify(core.NewEmail("a@b.com", "s", "b", nil, time.Now()))
	assert.NotEqual(t, core.MethodMLUnavailable, decision.Method, "a corrupt artifact must trigger a default retrain")

	art, err := loadArtifact(path)
	require.NoError(t, err, "the retrain must persist a fresh artifact")
	assert.Equal(t, SchemaVersion, art.SchemaVersion)
	assert.Equal(t, features.NewExtractor(nil).FeatureNames(), art.FeatureNames)
}

func TestRestoreFromArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spam_model.gob")
	cfg := Config{ArtifactPath: path, MarketingEnabled: true, MarketingThreshold: 0.6}

	first := NewClassifier(features.NewExtractor(nil), &stubHistory{}, cfg, zap.NewNop())
	_ = first

	restored := NewClassifier(features.NewExtractor(nil), &stubHistory{}, cfg, zap.NewNop())
	decision := restored.Classify(core.NewEmail("a@b.com", "s", "b", nil, time.Now()))
	assert.NotEqual(t, core.MethodMLUnavailable, decision.Method)
}

func TestSampleWeight(t *testing.T) {
	history := &stubHistory{stats: map[string]core.SenderStats{
		"two@example.com":      {SpamCount: 1, HamCount: 1},
		"veteran@example.com":  {SpamCount: 2, HamCount: 1},
		"recurring@example.tk": {SpamCount: 4},
	}}
	c := &Classifier{history: history}

	sample := func(sender, source string) core.TrainingSample {
		return core.TrainingSample{
			Email:  core.NewEmail(sender, "s", "b", nil, time.Now()),
			Source: source,
		}
	}

	assert.Equal(t, 1.0, c.sampleWeight(sample("new@example.com", core.SampleSourceDefault)))
	assert.Equal(t, 3.0, c.sampleWeight(sample("new@example.com", core.SampleSourceUserFeedback)))
	assert.Equal(t, 1.5, c.sampleWeight(sample("two@example.com", core.SampleSourceDefault)))
	assert.Equal(t, 4.5, c.sampleWeight(sample("two@example.com", core.SampleSourceUserFeedback)))
	assert.Equal(t, 5.0, c.sampleWeight(sample("veteran@example.com", core.SampleSourceDefault)))
	assert.Equal(t, 5.0, c.sampleWeight(sample("recurring@example.tk", core.SampleSourceUserFeedback)))
}

func TestSplitStratified(t *testing.T) {
	labels := make([]int, 20)
	for i := 10; i < 20; i++ {
		labels[i] = 1
	}
	train, test, degenerate := splitStratified(labels)
	assert.False(t, degenerate)
	assert.Len(t, test, 4, "every fifth sample of each class is held out")
	assert.Len(t, train, 16)

	_, _, degenerate = splitStratified(make([]int, 10))
	assert.True(t, degenerate, "a single-class set cannot be split")

	small := []int{0, 1, 0, 1, 0, 1}
	train, test, degenerate = splitStratified(small)
	assert.True(t, degenerate)
	assert.Equal(t, train, test, "degenerate sets evaluate on the training data")
}

func TestScaler(t *testing.T) {
	x := [][]float64{
		{1, 10, 5},
		{3, 10, 7},
	}
	s := FitScaler(x)
	assert.InDelta(t, 2.0, s.Mean[0], 1e-9)
	assert.Equal(t, 1.0, s.Std[1], "constant columns get unit deviation")

	scaled := s.Transform([]float64{2, 10, 6})
	assert.InDelta(t, 0.0, scaled[0], 1e-9)
	assert.InDelta(t, 0.0, scaled[1], 1e-9)
}

func TestMarketingScore(t *testing.T) {
	promo := map[string]float64{
		"has_list_unsubscribe":       1,
		"content_newsletter_phrases": 4,
		"content_marketing_keywords": 5,
		"content_tracking_urls":      3,
		"content_cta_count":          3,
		"html_text_ratio":            3,
		"content_social_links":       2,
		"content_price_indicators":   2,
	}
	assert.InDelta(t, 1.0, marketingScore(promo), 1e-9)
	assert.Equal(t, 0.0, marketingScore(map[string]float64{}))

	partial := map[string]float64{"has_list_unsubscribe": 1}
	assert.InDelta(t, 0.25, marketingScore(partial), 1e-9)
}

func TestMarketingScoreCountsHTMLDensity(t *testing.T) {
	heavy := map[string]float64{"html_text_ratio": 3}
	assert.InDelta(t, 0.10, marketingScore(heavy), 1e-9)

	half := map[string]float64{"html_text_ratio": 2}
	assert.InDelta(t, 0.05, marketingScore(half), 1e-9)

	// A ratio of 1 means plain text and must not score.
	plain := map[string]float64{"html_text_ratio": 1}
	assert.Equal(t, 0.0, marketingScore(plain))
}

func TestMarketingOverrideThresholdIsStrict(t *testing.T) {
	c := &Classifier{cfg: Config{MarketingEnabled: true, MarketingThreshold: 0.25}}

	atThreshold := map[string]float64{"has_list_unsubscribe": 1}
	score, fired := c.marketingOverride(atThreshold)
	assert.InDelta(t, 0.25, score, 1e-9)
	assert.False(t, fired, "a score equal to the threshold must not fire")

	above := map[string]float64{
		"has_list_unsubscribe":     1,
		"content_price_indicators": 2,
	}
	_, fired = c.marketingOverride(above)
	assert.True(t, fired)

	disabled := &Classifier{cfg: Config{MarketingEnabled: false, MarketingThreshold: 0.25}}
	_, fired = disabled.marketingOverride(above)
	assert.False(t, fired)
}

func TestSingleClassModelUsesSoleProbability(t *testing.T) {
	c := newTestClassifier(t)

	hamSenders := []string{
		"alice@example.com", "bob@example.com", "carol@example.com",
		"dave@example.com", "erin@example.com", "frank@example.com",
		"grace@example.com", "heidi@example.com", "ivan@example.com",
		"judy@example.com",
	}
	samples := make([]core.TrainingSample, 0, len(hamSenders))
	for _, sender := range hamSenders {
		samples = append(samples, core.TrainingSample{
			Email:  core.NewEmail(sender, "Project update", "Minutes from today's sync are attached.", nil, time.Now()),
			IsSpam: false,
			Source: core.SampleSourceUserFeedback,
		})
	}

	result, err := c.TrainWithSamples(samples)
	require.NoError(t, err)
	assert.True(t, result.Degenerate)
	assert.Equal(t, 0, result.SpamCount)

	decision := c.Classify(core.NewEmail("colleague@example.com", "Lunch?", "Free at noon?", nil, time.Now()))
	assert.Equal(t, core.ActionKeep, decision.Action)
	assert.Equal(t, core.MethodMLForest, decision.Method, "a single-class model still answers with its sole probability")
	assert.Greater(t, decision.Confidence, 0.8)
}
