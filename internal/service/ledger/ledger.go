// Package ledger accumulates language-model spend for the lifetime of the process.
package ledger

import (
	"sync"
	"time"

	"syncnexus/internal/service/agent/llm"
)

// Snapshot is a point-in-time copy of the ledger totals.
type Snapshot struct {
	Tokens int64   `json:"tokens"`
	Total  float64 `json:"total"`
	Today  float64 `json:"today"`
	Calls  int64   `json:"calls"`
	// Since is when the ledger was created or last reset.
	Since time.Time `json:"since"`
}

// Ledger is a process-wide running total of token usage and cost.
// All methods are safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens int64
	total  float64
	today  float64
	day    time.Time
	calls  int64
	since  time.Time
}

// New creates an empty ledger using the wall clock.
func New() *Ledger {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty ledger with an injectable clock.
func NewWithClock(now func() time.Time) *Ledger {
	t := now()
	return &Ledger{now: now, day: startOfDay(t), since: t}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Record adds the usage of one successful call. Negative values are ignored
// so the lifetime counters never decrease.
func (l *Ledger) Record(u llm.Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	if u.Tokens > 0 {
		l.tokens += int64(u.Tokens)
	}
	if u.Cost > 0 {
		l.total += u.Cost
		l.today += u.Cost
	}
	l.calls++
}

// rollover clears today's counter when the local day has changed.
func (l *Ledger) rollover() {
	day := startOfDay(l.now())
	if !day.Equal(l.day) {
		l.day = day
		l.today = 0
	}
}

// Snapshot returns the current totals.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	return Snapshot{
		Tokens: l.tokens,
		Total:  l.total,
		Today:  l.today,
		Calls:  l.calls,
		Since:  l.since,
	}
}

// Reset zeroes every counter. It is only called on explicit user action.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	l.tokens, l.total, l.today, l.calls = 0, 0, 0, 0
	l.day = startOfDay(t)
	l.since = t
}

var _ llm.Recorder = (*Ledger)(nil)
