package nexus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/logger"
	"syncnexus/internal/service/agent"
	"syncnexus/internal/service/agent/llm"
	"syncnexus/internal/service/enrich"
	"syncnexus/internal/service/gateway"
	"syncnexus/internal/service/journal"
	"syncnexus/internal/service/ledger"
	syncsvc "syncnexus/internal/service/sync"
	"syncnexus/internal/service/triage"
)

type stubBackend struct {
	reply string
	usage llm.Usage
	calls int
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Generate(context.Context, llm.Request) (string, llm.Usage, error) {
	b.calls++
	return b.reply, b.usage, nil
}

type stubGateway struct {
	groups []gateway.Group
	sent   int
}

func (g *stubGateway) FetchGroups(context.Context, string) ([]gateway.Group, error) {
	return g.groups, nil
}

func (g *stubGateway) FetchParticipants(context.Context, string, string) ([]gateway.Participant, error) {
	return nil, nil
}

func (g *stubGateway) FetchHistory(context.Context, string, string, int) ([]gateway.HistoryMessage, error) {
	return nil, nil
}

func (g *stubGateway) SendText(context.Context, string, string, string) (bool, error) {
	g.sent++
	return true, nil
}

type fixture struct {
	nexus   *Nexus
	db      *store.Container
	backend *stubBackend
	gw      *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Nop()
	cfg := config.Default()

	s, err := store.New(filepath.Join(t.TempDir(), "nexus.db"), log)
	require.NoError(t, err)
	db := store.NewContainer(s)
	t.Cleanup(func() { db.Close() })

	backend := &stubBackend{
		reply: `{"score": 92, "intent": "partnership", "reasoning": "r", "shouldReply": true, "groupDraft": "g", "dmDraft": "d"}`,
		usage: llm.Usage{Tokens: 120, Cost: 0.012},
	}
	gw := &stubGateway{}
	l := ledger.New()
	j := journal.New(0, log)
	settings := NewSettings(cfg.Triage)

	engine := agent.NewService(llm.NewMeter(backend, l, time.Second), log)
	queue := triage.NewQueue(db.Triage, gw, func(int) string { return "Unified" }, j, log)
	analyzer := triage.NewAnalyzer(engine, queue, db.Analyses, j, log)
	enricher := enrich.NewController(db.Contacts, db.Messages, engine, cfg.Enrichment, j, log)
	coord := syncsvc.NewCoordinator(gw, db, enricher, analyzer, cfg.Gateway.Instances, cfg.Sync, settings.Get, j, log)

	return &fixture{
		nexus:   New(db, settings, coord, enricher, analyzer, queue, l, j, log),
		db:      db,
		backend: backend,
		gw:      gw,
	}
}

func TestAnalyzeChargesLedgerAndQueues(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Messages.Put(&store.Message{
		ID: "m1", ChatJID: "1@g.us", SenderID: "111@s.whatsapp.net",
		Body: "Looking for a solar partner for a 5MW project", Timestamp: time.Unix(1_700_000_000, 0),
	})
	require.NoError(t, err)

	res, err := f.nexus.Analyze(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, res.Admitted)

	costs := f.nexus.Costs()
	assert.Equal(t, int64(120), costs.Tokens)
	assert.InDelta(t, 0.012, costs.Total, 1e-9)

	_, err = f.nexus.Analyze(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(240), f.nexus.Costs().Tokens)

	stats, err := f.nexus.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 75, stats.Threshold)
}

func TestAnalyzeUnknownMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.nexus.Analyze(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.backend.calls)
}

func TestEnrichGatingThroughFacade(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Contacts.Upsert(&store.Contact{ID: "111@s.whatsapp.net", DisplayName: "Ana"})
	require.NoError(t, err)

	out, err := f.nexus.Enrich(context.Background(), "111@s.whatsapp.net", false)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Zero(t, f.backend.calls)
	assert.Zero(t, f.nexus.Costs().Tokens)
}

func TestSettingsReplace(t *testing.T) {
	f := newFixture(t)
	next := f.nexus.Settings().Get()
	next.Threshold = 50
	require.NoError(t, f.nexus.Settings().Replace(next))
	assert.Equal(t, 50, f.nexus.Settings().Get().Threshold)

	next.Threshold = 101
	assert.Error(t, f.nexus.Settings().Replace(next))
	assert.Equal(t, 50, f.nexus.Settings().Get().Threshold)
}

func TestSyncGroupsAndPrefs(t *testing.T) {
	f := newFixture(t)
	f.gw.groups = []gateway.Group{{ID: "1@g.us", Subject: "Deals"}}

	stats, err := f.nexus.Stats()
	require.NoError(t, err)
	assert.Empty(t, stats.LastSync)

	res, err := f.nexus.SyncGroups(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)

	stats, err = f.nexus.Stats()
	require.NoError(t, err)
	assert.False(t, stats.LastSync[syncsvc.TypeGroups].IsZero())
	assert.NotContains(t, stats.LastSync, syncsvc.TypeHistory)

	prefs := store.DefaultGroupPrefs(10)
	prefs.EnableScoring = false
	g, err := f.nexus.UpdateGroupPrefs("1@g.us", prefs)
	require.NoError(t, err)
	assert.Equal(t, 10, g.HistoryLimit)
	assert.False(t, g.EnableScoring)

	_, err = f.nexus.UpdateGroupPrefs("1@g.us", store.GroupPrefs{})
	assert.Error(t, err)
	_, err = f.nexus.UpdateGroupPrefs("2@g.us", prefs)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResetCosts(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Contacts.Upsert(&store.Contact{ID: "111@s.whatsapp.net"})
	require.NoError(t, err)
	f.backend.reply = `{"role": "Dev", "industry": "Solar", "summary": "s", "score": 40}`

	_, err = f.nexus.Enrich(context.Background(), "111@s.whatsapp.net", true)
	require.NoError(t, err)
	assert.Equal(t, int64(120), f.nexus.Costs().Tokens)

	f.nexus.ResetCosts()
	assert.Zero(t, f.nexus.Costs().Tokens)
	assert.NotEmpty(t, f.nexus.Logs())
}
