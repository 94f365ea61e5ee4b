package enrich

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
	"syncnexus/internal/infra/logger"
	"syncnexus/internal/service/agent"
	"syncnexus/internal/service/journal"
)

type fakeProfiler struct {
	profile     *agent.Profile
	err         error
	calls       int
	lastHistory string
}

func (f *fakeProfiler) Provider() string { return "stub" }

func (f *fakeProfiler) Profile(_ context.Context, _, _, history string) (*agent.Profile, error) {
	f.calls++
	f.lastHistory = history
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

type fixture struct {
	db       *store.Container
	ctrl     *Controller
	profiler *fakeProfiler
	journal  *journal.Journal
	pauses   []time.Duration
}

func newFixture(t *testing.T, cfg config.EnrichmentConfig) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "nexus.db"), logger.Nop())
	require.NoError(t, err)
	db := store.NewContainer(s)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		profiler: &fakeProfiler{profile: &agent.Profile{Role: "Developer", Industry: "Solar", Summary: "Builds plants", Score: 81}},
	}
	f.journal = journal.New(0, logger.Nop())
	f.ctrl = NewController(db.Contacts, db.Messages, f.profiler, cfg, f.journal, logger.Nop())
	f.ctrl.SetSleeper(func(_ context.Context, d time.Duration) error {
		f.pauses = append(f.pauses, d)
		return nil
	})
	return f
}

func defaultConfig() config.EnrichmentConfig {
	return config.Default().Enrichment
}

func (f *fixture) addContact(t *testing.T, id string) {
	t.Helper()
	_, err := f.db.Contacts.Upsert(&store.Contact{ID: id, DisplayName: "Contact " + id})
	require.NoError(t, err)
}

func (f *fixture) addMessage(t *testing.T, id, sender, body string, ts time.Time) {
	t.Helper()
	_, err := f.db.Messages.Put(&store.Message{ID: id, ChatJID: "1@g.us", SenderID: sender, Body: body, Timestamp: ts})
	require.NoError(t, err)
}

func TestInactiveContactIsNotCharged(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")

	out, err := f.ctrl.Enrich(context.Background(), "111@s.whatsapp.net", false, false, "")
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Zero(t, f.profiler.calls)

	c, err := f.db.Contacts.Get("111@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, store.StateEvaluated, c.State)
	assert.Nil(t, c.Enrichment)
}

func TestForceEnrichesInactiveContact(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")

	out, err := f.ctrl.Enrich(context.Background(), "111@s.whatsapp.net", true, false, "")
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 1, f.profiler.calls)

	c, err := f.db.Contacts.Get("111@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, store.StateEnriched, c.State)
	require.NotNil(t, c.Enrichment)
	assert.Equal(t, "Developer", c.Enrichment.Role)
	assert.Equal(t, "stub", c.Enrichment.Provider)
	assert.Equal(t, 81, c.Relevance)
	require.Len(t, c.ResearchLog, 1)
	assert.Equal(t, "Builds plants", c.ResearchLog[0].Summary)
}

func TestActiveContactHistoryNewestFirst(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")
	base := time.Unix(1_700_000_000, 0)
	f.addMessage(t, "m1", "111@s.whatsapp.net", "older", base)
	f.addMessage(t, "m2", "111@s.whatsapp.net", "newer", base.Add(time.Minute))

	_, err := f.ctrl.Enrich(context.Background(), "111@s.whatsapp.net", false, false, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.profiler.calls)
	assert.Equal(t, "newer\nolder", f.profiler.lastHistory)
}

func TestHistoryIsTruncated(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxContextChars = 8
	f := newFixture(t, cfg)
	f.addContact(t, "111@s.whatsapp.net")
	f.addMessage(t, "m1", "111@s.whatsapp.net", "ünïcödé message body", time.Unix(1_700_000_000, 0))

	_, err := f.ctrl.Enrich(context.Background(), "111@s.whatsapp.net", false, true, "")
	require.NoError(t, err)
	assert.Equal(t, "ünïcödé ", f.profiler.lastHistory)
}

func TestFailureRestoresPriorState(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")
	f.addMessage(t, "m1", "111@s.whatsapp.net", "hello", time.Unix(1_700_000_000, 0))
	f.profiler.err = errors.New("model down")

	_, err := f.ctrl.Enrich(context.Background(), "111@s.whatsapp.net", false, false, "")
	require.Error(t, err)

	c, err := f.db.Contacts.Get("111@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, store.StateUnseen, c.State)
	assert.Nil(t, c.Enrichment)
	assert.Empty(t, c.ResearchLog)
}

func TestUnknownContact(t *testing.T) {
	f := newFixture(t, defaultConfig())
	_, err := f.ctrl.Enrich(context.Background(), "nobody", true, false, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBatchPacesCalls(t *testing.T) {
	cfg := defaultConfig()
	cfg.PaceEvery = 5
	cfg.PaceDelay = config.Duration(1500 * time.Millisecond)
	f := newFixture(t, cfg)

	var ids []string
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("%d@s.whatsapp.net", 100+i)
		f.addContact(t, id)
		ids = append(ids, id)
	}
	f.addMessage(t, "m1", ids[0], "active", time.Unix(1_700_000_000, 0))

	res, err := f.ctrl.Batch(context.Background(), ids, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)
	assert.Equal(t, 11, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.GreaterOrEqual(t, len(f.pauses), 12/5)
	assert.Equal(t, res.Pauses, len(f.pauses))
	for _, d := range f.pauses {
		assert.Equal(t, 1500*time.Millisecond, d)
	}
	assert.Equal(t, 1, f.profiler.calls)
}

func TestBatchContinuesPastFailures(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")

	res, err := f.ctrl.Batch(context.Background(), []string{"missing", "111@s.whatsapp.net"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
}

func TestBatchStopsOnCancel(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ctrl.Batch(ctx, []string{"111@s.whatsapp.net"}, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hé", TruncateRunes("héllo", 2))
	assert.Equal(t, "héllo", TruncateRunes("héllo", 10))
	assert.Equal(t, "", TruncateRunes("héllo", 0))
}

func TestEnrichJournalsHistoryEstimate(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addContact(t, "111@s.whatsapp.net")
	f.addMessage(t, "m1", "111@s.whatsapp.net", "abcdefgh", time.Unix(1_700_000_000, 0))

	_, err := f.ctrl.Enrich(context.Background(), "111@s.whatsapp.net", false, false, "")
	require.NoError(t, err)

	var texts []string
	for _, e := range f.journal.Entries() {
		if e.Kind == journal.KindAI {
			texts = append(texts, e.Text)
		}
	}
	assert.Contains(t, texts, "Enriching Contact 111@s.whatsapp.net (~2 tokens of history)...")
}

func TestBatchStopsOnConfigError(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ids := []string{"1@s.whatsapp.net", "2@s.whatsapp.net", "3@s.whatsapp.net"}
	for i, id := range ids {
		f.addContact(t, id)
		f.addMessage(t, fmt.Sprintf("m%d", i), id, "hello", time.Unix(1_700_000_000, 0))
	}
	f.profiler.err = fault.Newf(fault.KindConfig, "llm.openai", "api key missing")

	res, err := f.ctrl.Batch(context.Background(), ids, "")
	require.Error(t, err)
	assert.Equal(t, fault.KindConfig, fault.KindOf(err))
	assert.Equal(t, 1, f.profiler.calls)
	assert.Equal(t, 1, res.Failed)

	var errorsLogged int
	for _, e := range f.journal.Entries() {
		if e.Kind == journal.KindError {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged)

	c, err := f.db.Contacts.Get("2@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, store.StateUnseen, c.State)
}
