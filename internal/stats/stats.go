package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
)

// Counters aggregates detection and learning activity for one day.
type Counters struct {
	Processed int            `json:"processed"`
	Spam      int            `json:"spam"`
	Kept      int            `json:"kept"`
	ByMethod  map[string]int `json:"by_method,omitempty"`
	Feedback  int            `json:"feedback"`
	Retrains  int            `json:"retrains"`
}

// Manager keeps per-day rollups of pipeline activity, persisted as one
// JSON file. Counting must never get in the way of classification, so
// every write failure is logged and swallowed.
type Manager struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	days map[string]*Counters
}

// NewManager loads existing rollups from dataDir, starting empty when the
// file is missing or unreadable.
func NewManager(dataDir string, logger *zap.Logger) *Manager {
	m := &Manager{
		path:   filepath.Join(dataDir, "stats.json"),
		logger: logger,
		days:   make(map[string]*Counters),
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read stats file", zap.Error(err))
		}
		return m
	}
	if err := json.Unmarshal(data, &m.days); err != nil {
		logger.Warn("Failed to parse stats file, starting empty", zap.Error(err))
		m.days = make(map[string]*Counters)
	}
	return m
}

func (m *Manager) today() *Counters {
	key := time.Now().Format("2006-01-02")
	c, ok := m.days[key]
	if !ok {
		c = &Counters{ByMethod: make(map[string]int)}
		m.days[key] = c
	}
	if c.ByMethod == nil {
		c.ByMethod = make(map[string]int)
	}
	return c
}

// RecordDecision counts one classified message.
func (m *Manager) RecordDecision(decision *core.Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.today()
	c.Processed++
	if decision.IsSpam() {
		c.Spam++
	} else {
		c.Kept++
	}
	c.ByMethod[decision.Method]++
	m.save()
}

// RecordFeedback counts one processed feedback report.
func (m *Manager) RecordFeedback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.today().Feedback++
	m.save()
}

// RecordRetrain counts one successful training pass.
func (m *Manager) RecordRetrain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.today().Retrains++
	m.save()
}

// Summary renders a text report over the last n days, newest first.
func (m *Manager) Summary(days int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.days))
	for key := range m.days {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if days > 0 && len(keys) > days {
		keys = keys[:days]
	}

	out := ""
	for _, key := range keys {
		c := m.days[key]
		out += fmt.Sprintf("%s: processed=%d spam=%d kept=%d feedback=%d retrains=%d\n",
			key, c.Processed, c.Spam, c.Kept, c.Feedback, c.Retrains)
	}
	if out == "" {
		out = "no activity recorded\n"
	}
	return out
}

func (m *Manager) save() {
	data, err := json.MarshalIndent(m.days, "", "  ")
	if err != nil {
		m.logger.Warn("Failed to marshal stats", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		m.logger.Warn("Failed to create stats directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		m.logger.Warn("Failed to write stats", zap.Error(err))
	}
}
