package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncnexus/internal/service/agent/llm"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestRecordIsMonotonic(t *testing.T) {
	l := New()
	usages := []llm.Usage{{Tokens: 2000, Cost: 0.002}, {Tokens: 450, Cost: 0.0005}, {Tokens: 0, Cost: 0}, {Tokens: 17, Cost: 0.000017}}

	var prev int64
	var want int64
	for _, u := range usages {
		l.Record(u)
		want += int64(u.Tokens)
		snap := l.Snapshot()
		require.GreaterOrEqual(t, snap.Tokens, prev)
		assert.Equal(t, want, snap.Tokens)
		prev = snap.Tokens
	}

	snap := l.Snapshot()
	assert.InDelta(t, 0.002517, snap.Total, 1e-12)
	assert.InDelta(t, snap.Total, snap.Today, 1e-12)
	assert.Equal(t, int64(4), snap.Calls)
}

func TestNegativeUsageIgnored(t *testing.T) {
	l := New()
	l.Record(llm.Usage{Tokens: 10, Cost: 0.1})
	l.Record(llm.Usage{Tokens: -5, Cost: -1})
	snap := l.Snapshot()
	assert.Equal(t, int64(10), snap.Tokens)
	assert.InDelta(t, 0.1, snap.Total, 1e-12)
}

func TestTodayRollsOverAtMidnight(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 23, 30, 0, 0, time.Local)}
	l := NewWithClock(clock.Now)

	l.Record(llm.Usage{Tokens: 100, Cost: 1})
	clock.t = clock.t.Add(time.Hour)
	l.Record(llm.Usage{Tokens: 100, Cost: 2})

	snap := l.Snapshot()
	assert.Equal(t, int64(200), snap.Tokens)
	assert.InDelta(t, 3.0, snap.Total, 1e-12)
	assert.InDelta(t, 2.0, snap.Today, 1e-12)
}

func TestReset(t *testing.T) {
	l := New()
	l.Record(llm.Usage{Tokens: 100, Cost: 1})
	l.Reset()
	snap := l.Snapshot()
	assert.Zero(t, snap.Tokens)
	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.Today)
}

func TestConcurrentRecord(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(llm.Usage{Tokens: 3, Cost: 0.5})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(150), l.Snapshot().Tokens)
}
