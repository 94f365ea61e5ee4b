package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncnexus/internal/infra/logger"
)

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nexus.db"), logger.Nop())
	require.NoError(t, err)
	c := NewContainer(s)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestContactInsertIfAbsentDoesNotDuplicate(t *testing.T) {
	c := newTestContainer(t)

	created, err := c.Contacts.InsertIfAbsent(&Contact{ID: "111@s.whatsapp.net", DisplayName: "Ana", Groups: []string{"g1@g.us"}})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Contacts.InsertIfAbsent(&Contact{ID: "111@s.whatsapp.net", DisplayName: "Other"})
	require.NoError(t, err)
	assert.False(t, created)

	n, err := c.Contacts.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := c.Contacts.Get("111@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.DisplayName)
	assert.Equal(t, StateUnseen, got.State)
}

func TestContactUpsertUnionsGroups(t *testing.T) {
	c := newTestContainer(t)

	_, err := c.Contacts.Upsert(&Contact{ID: "a", DisplayName: "A", Groups: []string{"g1@g.us"}})
	require.NoError(t, err)
	created, err := c.Contacts.Upsert(&Contact{ID: "a", Groups: []string{"g2@g.us", "g1@g.us"}})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := c.Contacts.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1@g.us", "g2@g.us"}, got.Groups)
	assert.Equal(t, "A", got.DisplayName)
}

func TestSaveEnrichmentAppendsResearchLog(t *testing.T) {
	c := newTestContainer(t)
	_, err := c.Contacts.InsertIfAbsent(&Contact{ID: "a", DisplayName: "A"})
	require.NoError(t, err)

	first := time.UnixMilli(1_700_000_000_000)
	second := first.Add(time.Hour)

	_, err = c.Contacts.SaveEnrichment("a", &Enrichment{Role: "CFO", Score: 40, Provider: "openai", UpdatedAt: first},
		ResearchEntry{Date: first, Provider: "openai", Summary: "first"})
	require.NoError(t, err)
	got, err := c.Contacts.SaveEnrichment("a", &Enrichment{Role: "CEO", Score: 0, Provider: "gemini", UpdatedAt: second},
		ResearchEntry{Date: second, Provider: "gemini", Summary: "second"})
	require.NoError(t, err)

	assert.Equal(t, "CEO", got.Enrichment.Role)

	stored, err := c.Contacts.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StateEnriched, stored.State)
	assert.Equal(t, 0, stored.Relevance)
	require.Len(t, stored.ResearchLog, 2)
	assert.Equal(t, "second", stored.ResearchLog[0].Summary)
	assert.Equal(t, "first", stored.ResearchLog[1].Summary)
}

func TestSaveEnrichmentUnknownContact(t *testing.T) {
	c := newTestContainer(t)
	_, err := c.Contacts.SaveEnrichment("ghost", &Enrichment{Score: 1}, ResearchEntry{Date: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergeKeepsLongestResearchLog(t *testing.T) {
	t1 := time.UnixMilli(1000)
	t2 := time.UnixMilli(2000)
	t3 := time.UnixMilli(3000)

	a := &Contact{ID: "x", Groups: []string{"g1"}, ResearchLog: []ResearchEntry{
		{Date: t2, Provider: "openai", Summary: "b"},
		{Date: t1, Provider: "openai", Summary: "a"},
	}}
	b := &Contact{ID: "x", DisplayName: "X", Groups: []string{"g2"}, ResearchLog: []ResearchEntry{
		{Date: t3, Provider: "gemini", Summary: "c"},
	}}

	got := Merge(a, b)
	assert.Equal(t, []string{"g1", "g2"}, got.Groups)
	assert.Equal(t, "X", got.DisplayName)

	want := []ResearchEntry{
		{Date: t3, Provider: "gemini", Summary: "c"},
		{Date: t2, Provider: "openai", Summary: "b"},
		{Date: t1, Provider: "openai", Summary: "a"},
	}
	if diff := cmp.Diff(want, got.ResearchLog); diff != "" {
		t.Errorf("research log mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupUpsertPreservesPrefs(t *testing.T) {
	c := newTestContainer(t)

	g := &Group{JID: "g1@g.us", Name: "Deals", MemberCount: 3, Instance: 1, GroupPrefs: DefaultGroupPrefs(20)}
	require.NoError(t, c.Groups.Upsert(g))
	require.NoError(t, c.Groups.UpdatePrefs("g1@g.us", GroupPrefs{Monitoring: false, HistoryLimit: 5}))

	require.NoError(t, c.Groups.Upsert(&Group{JID: "g1@g.us", Name: "Deals 2", MemberCount: 4, GroupPrefs: DefaultGroupPrefs(20)}))

	got, err := c.Groups.Get("g1@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Deals 2", got.Name)
	assert.Equal(t, 4, got.MemberCount)
	assert.Equal(t, 1, got.Instance)
	assert.False(t, got.Monitoring)
	assert.Equal(t, 5, got.HistoryLimit)

	monitored, err := c.Groups.ListMonitored()
	require.NoError(t, err)
	assert.Empty(t, monitored)
}

func TestMessagePutRejectsEmptyBody(t *testing.T) {
	c := newTestContainer(t)

	_, err := c.Messages.Put(&Message{ID: "m1", SenderID: "a", Body: "   "})
	assert.ErrorIs(t, err, ErrEmptyBody)

	added, err := c.Messages.Put(&Message{ID: "m2", SenderID: "a", Body: "hi", Timestamp: time.Unix(100, 0)})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.Messages.Put(&Message{ID: "m2", SenderID: "a", Body: "changed", Timestamp: time.Unix(100, 0)})
	require.NoError(t, err)
	assert.False(t, added)

	got, err := c.Messages.Get("m2")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Body)

	n, err := c.Messages.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestContactMessageCount(t *testing.T) {
	c := newTestContainer(t)
	_, err := c.Contacts.InsertIfAbsent(&Contact{ID: "a", DisplayName: "A"})
	require.NoError(t, err)

	got, err := c.Contacts.Get("a")
	require.NoError(t, err)
	assert.False(t, got.Active())

	_, err = c.Messages.Put(&Message{ID: "m1", SenderID: "a", Body: "hello", Timestamp: time.Unix(1, 0)})
	require.NoError(t, err)

	got, err = c.Contacts.Get("a")
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Equal(t, 1, got.MessageCount)
}

func TestTriageOneOpenEntryPerMessage(t *testing.T) {
	c := newTestContainer(t)

	require.NoError(t, c.Triage.Insert(&TriageEntry{ID: "q-1", MessageID: "m1", SenderID: "a", Body: "x", Score: 80}))
	err := c.Triage.Insert(&TriageEntry{ID: "q-2", MessageID: "m1", SenderID: "a", Body: "x", Score: 90})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	require.NoError(t, c.Triage.Close("q-1", StatusArchived))
	assert.ErrorIs(t, c.Triage.Close("q-1", StatusArchived), ErrNotFound)

	// A closed entry no longer blocks a fresh admission.
	require.NoError(t, c.Triage.Insert(&TriageEntry{ID: "q-3", MessageID: "m1", SenderID: "a", Body: "x", Score: 90}))

	queued, err := c.Triage.ListQueued()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "q-3", queued[0].ID)
}

func TestTriageListNewestFirst(t *testing.T) {
	c := newTestContainer(t)
	for _, id := range []string{"q-1", "q-2", "q-3"} {
		require.NoError(t, c.Triage.Insert(&TriageEntry{ID: id, MessageID: "m-" + id, SenderID: "a", Body: "x", Score: 80}))
	}
	queued, err := c.Triage.ListQueued()
	require.NoError(t, err)
	ids := []string{queued[0].ID, queued[1].ID, queued[2].ID}
	assert.Equal(t, []string{"q-3", "q-2", "q-1"}, ids)
}

func TestSyncStateRoundTrip(t *testing.T) {
	c := newTestContainer(t)

	missing, err := c.SyncState.Get("groups")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, c.SyncState.Put(&SyncState{SyncType: "groups", LastSyncAt: time.Unix(500, 0), SyncProgress: 100}))
	got, err := c.SyncState.Get("groups")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.LastSyncAt.Unix())

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Contacts)
}
