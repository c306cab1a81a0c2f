package ml

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	randomforest "github.com/malaschitz/randomForest"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/features"
)

// ErrInsufficientSamples is returned by TrainWithSamples when the sample
// set is below the training floor. The current model stays untouched.
var ErrInsufficientSamples = errors.New("not enough samples to train")

const (
	// minTrainingSamples is the floor below which training is refused.
	minTrainingSamples = 10
	// holdoutMinSamples is the smallest sample set that gets a held-out
	// evaluation split. Below it, accuracy is measured on the training
	// data and the result is flagged degenerate.
	holdoutMinSamples = 20

	forestTrees = 100
	// maxReplication caps how many times one weighted sample is repeated
	// in the training matrix.
	maxReplication = 10
)

// Config holds the classifier settings.
type Config struct {
	ArtifactPath       string
	MarketingEnabled   bool
	MarketingThreshold float64
}

// Classifier is the random-forest layer of the pipeline. It always
// answers: an untrained model produces a neutral KEEP so the pipeline
// can fall through to the external classifier.
type Classifier struct {
	extractor *features.Extractor
	history   core.SenderHistory
	cfg       Config
	logger    *zap.Logger

	mu           sync.RWMutex
	forest       *randomforest.Forest
	scaler       *Scaler
	featureNames []string
}

// NewClassifier restores the model from its artifact, or retrains from
// the built-in default samples when the artifact is missing, corrupt, or
// was produced by a different feature schema.
func NewClassifier(extractor *features.Extractor, history core.SenderHistory, cfg Config, logger *zap.Logger) *Classifier {
	c := &Classifier{
		extractor: extractor,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}

	if err := c.restore(); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Stored model unusable, retraining from defaults", zap.Error(err))
		} else {
			logger.Info("No model artifact found, training from defaults",
				zap.String("path", cfg.ArtifactPath))
		}
		if _, terr := c.TrainWithSamples(DefaultSamples()); terr != nil {
			logger.Error("Failed to train default model", zap.Error(terr))
		}
	}
	return c
}

func (c *Classifier) restore() error {
	art, err := loadArtifact(c.cfg.ArtifactPath)
	if err != nil {
		return err
	}

	current := c.extractor.FeatureNames()
	if !equalNames(art.FeatureNames, current) {
		return fmt.Errorf("model artifact has %d features, extractor has %d",
			len(art.FeatureNames), len(current))
	}

	forest := buildForest(art.X, art.Class)

	c.mu.Lock()
	c.forest = forest
	c.scaler = art.Scaler
	c.featureNames = art.FeatureNames
	c.mu.Unlock()

	c.logger.Info("Restored spam model",
		zap.String("path", c.cfg.ArtifactPath),
		zap.Int("features", len(art.FeatureNames)),
		zap.Int("samples", len(art.X)))
	return nil
}

func buildForest(x [][]float64, class []int) *randomforest.Forest {
	forest := &randomforest.Forest{}
	forest.Data = randomforest.ForestData{X: x, Class: class}
	forest.Train(forestTrees)
	return forest
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Classify scores one message. It never errors: with no usable model it
// returns a neutral KEEP tagged ml_unavailable.
func (c *Classifier) Classify(email *core.Email) *core.Decision {
	c.mu.RLock()
	forest := c.forest
	scaler := c.scaler
	names := c.featureNames
	c.mu.RUnlock()

	if forest == nil {
		return &core.Decision{
			Action:     core.ActionKeep,
			Reason:     "model not trained",
			Confidence: 0.5,
			Method:     core.MethodMLUnavailable,
		}
	}

	vector := c.extractor.Extract(email)
	votes := forest.Vote(scaler.Transform(vectorize(vector, names)))
	if len(votes) == 0 {
		return &core.Decision{
			Action:     core.ActionKeep,
			Reason:     "model produced no vote",
			Confidence: 0.5,
			Method:     core.MethodMLUnavailable,
		}
	}

	// A model trained on a single class yields one probability; the sole
	// class wins with it.
	hamProb := votes[0]
	spamProb := 0.0
	if len(votes) > 1 {
		spamProb = votes[1]
	}
	if spamProb >= hamProb {
		return &core.Decision{
			Action:     core.ActionSpam,
			Reason:     fmt.Sprintf("random forest spam probability %.2f", spamProb),
			Confidence: spamProb,
			Method:     core.MethodMLForest,
		}
	}

	if score, ok := c.marketingOverride(vector); ok {
		return &core.Decision{
			Action:     core.ActionSpam,
			Reason:     fmt.Sprintf("marketing content score %.2f", score),
			Confidence: score,
			Method:     core.MethodMLMarketing,
		}
	}

	return &core.Decision{
		Action:     core.ActionKeep,
		Reason:     fmt.Sprintf("random forest ham probability %.2f", hamProb),
		Confidence: hamProb,
		Method:     core.MethodMLForest,
	}
}

// marketingOverride applies the marketing policy to a ham prediction. The
// score must strictly exceed the threshold to fire.
func (c *Classifier) marketingOverride(f map[string]float64) (float64, bool) {
	if !c.cfg.MarketingEnabled {
		return 0, false
	}
	score := marketingScore(f)
	return score, score > c.cfg.MarketingThreshold
}

// TrainWithSamples fits a new model from labeled samples and persists the
// artifact atomically. Below the training floor it returns
// ErrInsufficientSamples and leaves the current model untouched.
func (c *Classifier) TrainWithSamples(samples []core.TrainingSample) (*core.TrainingResult, error) {
	if len(samples) < minTrainingSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), minTrainingSamples)
	}

	names := c.extractor.FeatureNames()
	vectors := make([][]float64, len(samples))
	labels := make([]int, len(samples))
	weights := make([]float64, len(samples))
	spamCount, hamCount := 0, 0

	for i, sample := range samples {
		vectors[i] = vectorize(c.extractor.Extract(sample.Email), names)
		if sample.IsSpam {
			labels[i] = 1
			spamCount++
		} else {
			hamCount++
		}
		weights[i] = c.sampleWeight(sample)
	}

	trainIdx, testIdx, degenerate := splitStratified(labels)

	trainX := make([][]float64, 0, len(trainIdx))
	for _, i := range trainIdx {
		trainX = append(trainX, vectors[i])
	}
	scaler := FitScaler(trainX)

	// Weighted samples are expressed by row replication; the ensemble has
	// no per-sample weight hook.
	var repX [][]float64
	var repClass []int
	for _, i := range trainIdx {
		reps := int(math.Round(weights[i]))
		if reps < 1 {
			reps = 1
		}
		if reps > maxReplication {
			reps = maxReplication
		}
		scaled := scaler.Transform(vectors[i])
		for r := 0; r < reps; r++ {
			repX = append(repX, scaled)
			repClass = append(repClass, labels[i])
		}
	}

	forest := buildForest(repX, repClass)

	correct := 0
	for _, i := range testIdx {
		votes := forest.Vote(scaler.Transform(vectors[i]))
		if argmax(votes) == labels[i] {
			correct++
		}
	}
	accuracy := 0.0
	if len(testIdx) > 0 {
		accuracy = float64(correct) / float64(len(testIdx))
	}

	art := &artifact{
		SchemaVersion: SchemaVersion,
		FeatureNames:  names,
		Scaler:        scaler,
		X:             repX,
		Class:         repClass,
	}
	if err := saveArtifact(c.cfg.ArtifactPath, art); err != nil {
		// The in-memory model is still good; the next successful training
		// pass will persist again.
		c.logger.Warn("Failed to persist model artifact", zap.Error(err))
	}

	c.mu.Lock()
	c.forest = forest
	c.scaler = scaler
	c.featureNames = names
	c.mu.Unlock()

	result := &core.TrainingResult{
		Accuracy:    accuracy,
		SampleCount: len(samples),
		SpamCount:   spamCount,
		HamCount:    hamCount,
		WeightMean:  stat.Mean(weights, nil),
		WeightMax:   maxOf(weights),
		Degenerate:  degenerate,
	}

	c.logger.Info("Trained spam model",
		zap.Int("samples", len(samples)),
		zap.Int("spam", spamCount),
		zap.Int("ham", hamCount),
		zap.Float64("accuracy", accuracy),
		zap.Bool("degenerate", degenerate))
	return result, nil
}

// sampleWeight implements the feedback weighting policy: user feedback
// outweighs bootstrap defaults, and senders with an established feedback
// record outweigh one-off reports.
func (c *Classifier) sampleWeight(sample core.TrainingSample) float64 {
	weight := 1.0
	if sample.Source == core.SampleSourceUserFeedback {
		weight = 3.0
	}

	var stats core.SenderStats
	if c.history != nil && sample.Email != nil {
		stats = c.history.StatsFor(sample.Email.SenderEmail)
	}
	switch {
	case stats.SpamCount >= 3 || stats.HamCount >= 3 || stats.Total() >= 3:
		return 5.0
	case stats.Total() == 2:
		return weight * 1.5
	}
	return weight
}

// splitStratified assigns every fifth sample of each class to the test
// set. Small or single-class sets evaluate on the training data instead
// and are flagged degenerate.
func splitStratified(labels []int) (train, test []int, degenerate bool) {
	classes := map[int]bool{}
	for _, l := range labels {
		classes[l] = true
	}
	if len(labels) < holdoutMinSamples || len(classes) < 2 {
		all := make([]int, len(labels))
		for i := range labels {
			all[i] = i
		}
		return all, all, true
	}

	seen := map[int]int{}
	for i, l := range labels {
		seen[l]++
		if seen[l]%5 == 0 {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test, false
}

// marketingScore aggregates newsletter and promotion signals into a
// single 0..1 score. The random forest sees the same raw features, this
// score only backs the explicit marketing policy threshold.
func marketingScore(f map[string]float64) float64 {
	score := 0.25 * f["has_list_unsubscribe"]
	score += 0.20 * capRatio(f["content_newsletter_phrases"], 3)
	score += 0.15 * capRatio(f["content_marketing_keywords"], 3)
	score += 0.10 * capRatio(f["content_tracking_urls"], 2)
	score += 0.10 * capRatio(f["content_cta_count"], 3)
	// A ratio of 1 is plain text; only the HTML excess counts.
	score += 0.10 * capRatio(f["html_text_ratio"]-1, 2)
	score += 0.05 * capRatio(f["content_social_links"], 2)
	score += 0.05 * capRatio(f["content_price_indicators"], 2)
	if score > 1 {
		score = 1
	}
	return score
}

func capRatio(v, limit float64) float64 {
	if v >= limit {
		return 1
	}
	if v <= 0 {
		return 0
	}
	return v / limit
}

func vectorize(f map[string]float64, names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = f[name]
	}
	return out
}

func argmax(votes []float64) int {
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}
	return best
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
