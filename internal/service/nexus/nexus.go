// Package nexus is the single entry point for every pipeline operation. Writes
// are serialized onto one logical thread of control; reads return snapshots.
package nexus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/sync/singleflight"

	"syncnexus/internal/data/store"
	"syncnexus/internal/service/enrich"
	"syncnexus/internal/service/journal"
	"syncnexus/internal/service/ledger"
	syncsvc "syncnexus/internal/service/sync"
	"syncnexus/internal/service/triage"
)

// Stats is the dashboard snapshot. LastSync only lists sync types that have
// completed at least once.
type Stats struct {
	store.Stats
	Threshold int                  `json:"threshold"`
	Costs     ledger.Snapshot      `json:"costs"`
	LastSync  map[string]time.Time `json:"last_sync"`
}

// Nexus wires the pipeline components together.
type Nexus struct {
	// mu serializes every mutating operation.
	mu     sync.Mutex
	flight singleflight.Group

	db          *store.Container
	settings    *Settings
	coordinator *syncsvc.Coordinator
	enricher    *enrich.Controller
	analyzer    *triage.Analyzer
	queue       *triage.Queue
	ledger      *ledger.Ledger
	journal     *journal.Journal
	log         waLog.Logger
}

// New creates a Nexus.
func New(
	db *store.Container,
	settings *Settings,
	coordinator *syncsvc.Coordinator,
	enricher *enrich.Controller,
	analyzer *triage.Analyzer,
	queue *triage.Queue,
	l *ledger.Ledger,
	j *journal.Journal,
	log waLog.Logger,
) *Nexus {
	return &Nexus{
		db:          db,
		settings:    settings,
		coordinator: coordinator,
		enricher:    enricher,
		analyzer:    analyzer,
		queue:       queue,
		ledger:      l,
		journal:     j,
		log:         log.Sub("Nexus"),
	}
}

// =============================================================================
// Reads
// =============================================================================

// Contacts returns every contact.
func (n *Nexus) Contacts() ([]*store.Contact, error) {
	return n.db.Contacts.List()
}

// Contact returns one contact.
func (n *Nexus) Contact(id string) (*store.Contact, error) {
	return n.db.Contacts.Get(id)
}

// Groups returns every known group.
func (n *Nexus) Groups() ([]*store.Group, error) {
	return n.db.Groups.List()
}

// Group returns one group.
func (n *Nexus) Group(jid string) (*store.Group, error) {
	return n.db.Groups.Get(jid)
}

// Messages returns the newest messages, optionally of one chat.
func (n *Nexus) Messages(chatJID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if chatJID != "" {
		return n.db.Messages.ListByChat(chatJID, limit)
	}
	return n.db.Messages.List(limit)
}

// Analysis returns the latest scoring record of a message.
func (n *Nexus) Analysis(messageID string) (*store.Analysis, error) {
	return n.db.Analyses.Get(messageID)
}

// Queue returns the open triage entries, most recent first.
func (n *Nexus) Queue() ([]*store.TriageEntry, error) {
	return n.queue.List()
}

// Costs returns the ledger totals.
func (n *Nexus) Costs() ledger.Snapshot {
	return n.ledger.Snapshot()
}

// Logs returns the activity log, newest first.
func (n *Nexus) Logs() []journal.Entry {
	return n.journal.Entries()
}

// Settings returns the settings holder.
func (n *Nexus) Settings() *Settings {
	return n.settings
}

// Stats returns the dashboard snapshot.
func (n *Nexus) Stats() (*Stats, error) {
	counts, err := n.db.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	last := make(map[string]time.Time)
	for _, t := range []string{syncsvc.TypeGroups, syncsvc.TypeMembers, syncsvc.TypeHistory, syncsvc.TypeMonitored} {
		if at := n.coordinator.LastSync(t); !at.IsZero() {
			last[t] = at
		}
	}
	return &Stats{
		Stats:     *counts,
		Threshold: n.settings.Get().Threshold,
		Costs:     n.ledger.Snapshot(),
		LastSync:  last,
	}, nil
}

// =============================================================================
// Writes
// =============================================================================

// Analyze scores a stored message and admits it when it qualifies.
func (n *Nexus) Analyze(ctx context.Context, messageID string) (*triage.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	msg, err := n.db.Messages.Get(messageID)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", messageID, err)
	}
	return n.analyzer.Analyze(ctx, msg, n.settings.Get())
}

// Enrich runs interactive enrichment of one contact.
func (n *Nexus) Enrich(ctx context.Context, contactID string, force bool) (*enrich.Outcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enricher.Enrich(ctx, contactID, force, false, n.settings.Get().Persona)
}

// Deploy sends a triage entry's draft over channel.
func (n *Nexus) Deploy(ctx context.Context, entryID string, channel triage.Channel) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queue.Deploy(ctx, entryID, channel)
}

// Archive drops a triage entry.
func (n *Nexus) Archive(entryID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queue.Archive(entryID)
}

// SyncGroups refreshes groups from instanceID (0 = all). Concurrent calls
// for the same target share one sweep.
func (n *Nexus) SyncGroups(ctx context.Context, instanceID int) (*syncsvc.GroupsResult, error) {
	v, err, shared := n.flight.Do("groups:"+strconv.Itoa(instanceID), func() (interface{}, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.coordinator.SyncGroups(ctx, instanceID)
	})
	if shared {
		n.log.Debugf("Joined in-flight group sync for instance %d", instanceID)
	}
	res, _ := v.(*syncsvc.GroupsResult)
	return res, err
}

// SyncMembers imports the participants of a group.
func (n *Nexus) SyncMembers(ctx context.Context, groupJID string) (*syncsvc.MembersResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.coordinator.SyncMembers(ctx, groupJID)
}

// SyncHistory imports recent messages of a group.
func (n *Nexus) SyncHistory(ctx context.Context, groupJID string) (*syncsvc.HistoryResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.coordinator.SyncHistory(ctx, groupJID)
}

// SyncMonitored walks every monitored group.
func (n *Nexus) SyncMonitored(ctx context.Context) (*syncsvc.MonitoredResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.coordinator.SyncMonitored(ctx)
}

// UpdateGroupPrefs replaces the sync preferences of a group.
func (n *Nexus) UpdateGroupPrefs(groupJID string, prefs store.GroupPrefs) (*store.Group, error) {
	if prefs.HistoryLimit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", prefs.HistoryLimit)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.db.Groups.UpdatePrefs(groupJID, prefs); err != nil {
		return nil, fmt.Errorf("update %s: %w", groupJID, err)
	}
	return n.db.Groups.Get(groupJID)
}

// ResetCosts zeroes the ledger.
func (n *Nexus) ResetCosts() {
	n.ledger.Reset()
	n.journal.Info("Cost ledger reset")
}
