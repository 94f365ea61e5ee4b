package nexus

import (
	"fmt"
	"sync"

	"syncnexus/internal/infra/config"
)

// Settings holds the triage configuration the running process uses. It can
// be replaced in memory but is never written back to disk.
type Settings struct {
	mu  sync.RWMutex
	cur config.TriageConfig
}

// NewSettings creates a Settings holder.
func NewSettings(initial config.TriageConfig) *Settings {
	return &Settings{cur: initial}
}

// Get returns the current settings.
func (s *Settings) Get() config.TriageConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Replace validates and installs next.
func (s *Settings) Replace(next config.TriageConfig) error {
	if next.Threshold < 0 || next.Threshold > 100 {
		return fmt.Errorf("threshold must be within 0-100, got %d", next.Threshold)
	}
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}
