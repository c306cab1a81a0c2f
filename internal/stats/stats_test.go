package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

func TestRecordDecisionCounts(t *testing.T) {
	m := NewManager(t.TempDir(), zap.NewNop())

	m.RecordDecision(&core.Decision{Action: core.ActionSpam, Method: core.MethodMLForest})
	m.RecordDecision(&core.Decision{Action: core.ActionKeep, Method: core.MethodMLForest})
	m.RecordDecision(&core.Decision{Action: core.ActionSpam, Method: core.MethodBlacklist})

	key := time.Now().Format("2006-01-02")
	c := m.days[key]
	assert.Equal(t, 3, c.Processed)
	assert.Equal(t, 2, c.Spam)
	assert.Equal(t, 1, c.Kept)
	assert.Equal(t, 2, c.ByMethod[core.MethodMLForest])
	assert.Equal(t, 1, c.ByMethod[core.MethodBlacklist])
}

func TestRecordFeedbackAndRetrain(t *testing.T) {
	m := NewManager(t.TempDir(), zap.NewNop())

	m.RecordFeedback()
	m.RecordFeedback()
	m.RecordRetrain()

	key := time.Now().Format("2006-01-02")
	assert.Equal(t, 2, m.days[key].Feedback)
	assert.Equal(t, 1, m.days[key].Retrains)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	m := NewManager(dir, logger)
	m.RecordDecision(&core.Decision{Action: core.ActionSpam, Method: core.MethodMLForest})

	reloaded := NewManager(dir, logger)
	key := time.Now().Format("2006-01-02")
	assert.Equal(t, 1, reloaded.days[key].Processed)
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "stats.json"), []byte("{broken"), 0o644))

	m := NewManager(dir, zap.NewNop())
	assert.Empty(t, m.days)
}

func TestSummary(t *testing.T) {
	m := NewManager(t.TempDir(), zap.NewNop())
	assert.Equal(t, "no activity recorded\n", m.Summary(7))

	m.RecordDecision(&core.Decision{Action: core.ActionSpam, Method: core.MethodMLForest})
	out := m.Summary(7)
	assert.Contains(t, out, time.Now().Format("2006-01-02"))
	assert.Contains(t, out, "processed=1 spam=1 kept=0")
}
