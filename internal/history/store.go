package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

// DefaultTTL bounds how stale the read snapshot may get. Reads within the
// window reuse the snapshot even when a write just happened; bounded
// staleness is the accepted price for not re-reading the table per
// classified message.
const DefaultTTL = 60 * time.Second

// Store keeps per-sender feedback aggregates. Writes come only from the
// feedback loop; the read path serves a time-cached snapshot.
type Store struct {
	path   string
	ttl    time.Duration
	logger *zap.Logger

	mu        sync.Mutex
	table     map[string]*core.SenderStats
	snapshot  map[string]core.SenderStats
	fetchedAt time.Time
}

// NewStore loads the sender-history table from dataDir. A missing or
// unreadable file yields an empty table rather than a startup failure.
func NewStore(dataDir string, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		path:   filepath.Join(dataDir, "sender_history.json"),
		ttl:    ttl,
		logger: logger,
		table:  make(map[string]*core.SenderStats),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read sender history", zap.Error(err))
		}
		return
	}
	var table map[string]*core.SenderStats
	if err := json.Unmarshal(data, &table); err != nil {
		s.logger.Error("Failed to parse sender history, starting empty", zap.Error(err))
		return
	}
	s.table = table
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sender history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sender history: %w", err)
	}
	return nil
}

// StatsFor returns the aggregate for a sender, zero-valued when unseen.
// The result comes from a snapshot refreshed at most every TTL.
func (s *Store) StatsFor(sender string) core.SenderStats {
	sender = strings.ToLower(sender)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil || time.Since(s.fetchedAt) > s.ttl {
		snapshot := make(map[string]core.SenderStats, len(s.table))
		for k, v := range s.table {
			snapshot[k] = *v
		}
		s.snapshot = snapshot
		s.fetchedAt = time.Now()
	}

	return s.snapshot[sender]
}

// RecordFeedback folds one feedback event into the sender's aggregate and
// persists the table. The read snapshot is intentionally left alone until
// its TTL lapses.
func (s *Store) RecordFeedback(sender, domain string, isSpam bool, now time.Time) error {
	sender = strings.ToLower(sender)
	if sender == "" {
		return fmt.Errorf("empty sender address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.table[sender]
	if !ok {
		stats = &core.SenderStats{FirstSeen: now}
		s.table[sender] = stats
	}
	if isSpam {
		stats.SpamCount++
	} else {
		stats.HamCount++
	}
	stats.LastSeen = now

	return s.save()
}
