package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordFeedbackAggregates(t *testing.T) {
	s := NewStore(t.TempDir(), time.Hour, zap.NewNop())
	now := time.Now()

	require.NoError(t, s.RecordFeedback("Spammer@Junk.tk", "junk.tk", true, now))
	require.NoError(t, s.RecordFeedback("spammer@junk.tk", "junk.tk", true, now.Add(time.Minute)))
	require.NoError(t, s.RecordFeedback("spammer@junk.tk", "junk.tk", false, now.Add(2*time.Minute)))

	stats := s.StatsFor("spammer@junk.tk")
	assert.Equal(t, 2, stats.SpamCount)
	assert.Equal(t, 1, stats.HamCount)
	assert.Equal(t, 3, stats.Total())
	assert.InDelta(t, 2.0/3.0, stats.SpamRatio(), 1e-9)
	assert.Equal(t, now.Unix(), stats.FirstSeen.Unix())
	assert.Equal(t, now.Add(2*time.Minute).Unix(), stats.LastSeen.Unix())
}

func TestEmptySenderRejected(t *testing.T) {
	s := NewStore(t.TempDir(), time.Hour, zap.NewNop())
	assert.Error(t, s.RecordFeedback("", "", true, time.Now()))
}

func TestUnknownSenderIsZero(t *testing.T) {
	s := NewStore(t.TempDir(), time.Hour, zap.NewNop())
	stats := s.StatsFor("nobody@example.com")
	assert.Zero(t, stats.Total())
	assert.Zero(t, stats.SpamRatio())
}

func TestSnapshotBoundedStaleness(t *testing.T) {
	s := NewStore(t.TempDir(), time.Hour, zap.NewNop())

	// First read pins the snapshot.
	_ = s.StatsFor("late@example.com")

	require.NoError(t, s.RecordFeedback("late@example.com", "example.com", true, time.Now()))

	stale := s.StatsFor("late@example.com")
	assert.Zero(t, stale.Total(), "reads within the TTL serve the old snapshot")

	// Force the snapshot to lapse.
	s.mu.Lock()
	s.fetchedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	fresh := s.StatsFor("late@example.com")
	assert.Equal(t, 1, fresh.SpamCount)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()
	now := time.Now()

	s := NewStore(dir, time.Hour, logger)
	require.NoError(t, s.RecordFeedback("spammer@junk.tk", "junk.tk", true, now))

	reloaded := NewStore(dir, time.Hour, logger)
	stats := reloaded.StatsFor("spammer@junk.tk")
	assert.Equal(t, 1, stats.SpamCount)
}
