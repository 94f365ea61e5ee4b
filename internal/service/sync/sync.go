// Package sync reconciles gateway groups, members and message history into
// the local stores.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
	"syncnexus/internal/service/enrich"
	"syncnexus/internal/service/gateway"
	"syncnexus/internal/service/journal"
	"syncnexus/internal/service/triage"
	"syncnexus/internal/utils/jid"
)

// Sync types recorded in the sync state table.
const (
	TypeGroups    = "groups"
	TypeMembers   = "members"
	TypeHistory   = "history"
	TypeMonitored = "monitored"
)

// Gateway is the read side of the messaging gateway.
type Gateway interface {
	FetchGroups(ctx context.Context, instance string) ([]gateway.Group, error)
	FetchParticipants(ctx context.Context, instance, groupJID string) ([]gateway.Participant, error)
	FetchHistory(ctx context.Context, instance, chatJID string, limit int) ([]gateway.HistoryMessage, error)
}

// Enricher evaluates newly imported contacts.
type Enricher interface {
	Batch(ctx context.Context, contactIDs []string, persona string) (*enrich.BatchResult, error)
}

// Analyzer scores sampled messages.
type Analyzer interface {
	Analyze(ctx context.Context, msg *store.Message, settings config.TriageConfig) (*triage.Result, error)
}

// GroupsResult summarizes a group sweep.
type GroupsResult struct {
	Fetched int      `json:"fetched"`
	Stored  int      `json:"stored"`
	Failed  []string `json:"failed_instances,omitempty"`
}

// MembersResult summarizes a member import.
type MembersResult struct {
	Fetched  int                 `json:"fetched"`
	Imported int                 `json:"imported"`
	Existing int                 `json:"existing"`
	Batch    *enrich.BatchResult `json:"batch,omitempty"`
}

// HistoryResult summarizes a history import. Senders counts contacts first
// seen in this history.
type HistoryResult struct {
	Fetched   int                 `json:"fetched"`
	Imported  int                 `json:"imported"`
	Discarded int                 `json:"discarded"`
	Analyzed  int                 `json:"analyzed"`
	Senders   int                 `json:"senders"`
	Batch     *enrich.BatchResult `json:"batch,omitempty"`
}

// MonitoredResult summarizes a sweep over monitored groups.
type MonitoredResult struct {
	Groups int `json:"groups"`
	Failed int `json:"failed"`
}

// Coordinator pulls gateway data into the stores. All work is sequential.
type Coordinator struct {
	gateway   Gateway
	db        *store.Container
	enricher  Enricher
	analyzer  Analyzer
	instances []config.InstanceConfig
	cfg       config.SyncConfig
	settings  func() config.TriageConfig
	journal   *journal.Journal
	log       waLog.Logger
}

// NewCoordinator creates a Coordinator. settings is read on every use so
// in-memory replacements take effect immediately.
func NewCoordinator(
	gw Gateway,
	db *store.Container,
	enricher Enricher,
	analyzer Analyzer,
	instances []config.InstanceConfig,
	cfg config.SyncConfig,
	settings func() config.TriageConfig,
	j *journal.Journal,
	log waLog.Logger,
) *Coordinator {
	return &Coordinator{
		gateway:   gw,
		db:        db,
		enricher:  enricher,
		analyzer:  analyzer,
		instances: instances,
		cfg:       cfg,
		settings:  settings,
		journal:   j,
		log:       log.Sub("SyncCoordinator"),
	}
}

// ResolveGroupName picks a display name for a raw group: subject, then name,
// then title, then the local part of its JID. It never returns "" for a
// non-empty JID.
func ResolveGroupName(g gateway.Group) string {
	return jid.FirstNonEmpty(g.Subject, g.Name, g.Title, jid.LocalPart(g.ID))
}

func (c *Coordinator) targets(instanceID int) ([]config.InstanceConfig, error) {
	if instanceID == 0 {
		return c.instances, nil
	}
	for _, inst := range c.instances {
		if inst.ID == instanceID {
			return []config.InstanceConfig{inst}, nil
		}
	}
	return nil, fmt.Errorf("unknown instance %d", instanceID)
}

func (c *Coordinator) instanceFor(id int) config.InstanceConfig {
	for _, inst := range c.instances {
		if inst.ID == id {
			return inst
		}
	}
	if len(c.instances) > 0 {
		return c.instances[0]
	}
	return config.InstanceConfig{}
}

// SyncGroups fetches the group list of every targeted instance (0 = all),
// keeps the last record seen per JID, and upserts the result. A failing
// instance never clears groups already stored.
func (c *Coordinator) SyncGroups(ctx context.Context, instanceID int) (*GroupsResult, error) {
	targets, err := c.targets(instanceID)
	if err != nil {
		return nil, err
	}

	c.journal.Info("Syncing groups from %d instance(s)...", len(targets))
	res := &GroupsResult{}
	byJID := make(map[string]*store.Group)
	var firstErr error

	for _, inst := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		raw, err := c.gateway.FetchGroups(ctx, inst.Name)
		if err != nil {
			c.journal.Error(err, "Group sync failed for %s", inst.Name)
			if fault.Is(err, fault.KindConfig) {
				return res, err
			}
			res.Failed = append(res.Failed, inst.Name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.Fetched += len(raw)
		for _, g := range raw {
			count := g.Size
			if count == 0 {
				count = g.Participants
			}
			byJID[g.ID] = &store.Group{
				JID:         g.ID,
				Name:        ResolveGroupName(g),
				Description: g.Description,
				MemberCount: count,
				Instance:    inst.ID,
				GroupPrefs:  store.DefaultGroupPrefs(c.cfg.HistoryLimit),
			}
		}
	}

	if len(res.Failed) == len(targets) {
		return res, firstErr
	}

	keys := make([]string, 0, len(byJID))
	for k := range byJID {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.db.Groups.Upsert(byJID[k]); err != nil {
			c.log.Warnf("Failed to save group %s: %v", k, err)
			continue
		}
		res.Stored++
	}

	c.recordSync(TypeGroups)
	c.journal.Success("Synced %d groups", res.Stored)
	return res, nil
}

// SyncMembers imports the participants of a group. Contacts already known
// get the membership added; new ones are created and then evaluated as a batch.
func (c *Coordinator) SyncMembers(ctx context.Context, groupJID string) (*MembersResult, error) {
	inst, _ := c.groupContext(groupJID)

	c.journal.Info("Importing members of %s...", groupJID)
	participants, err := c.gateway.FetchParticipants(ctx, inst.Name, groupJID)
	if err != nil {
		c.journal.Error(err, "Member import failed for %s", groupJID)
		return nil, err
	}

	res := &MembersResult{Fetched: len(participants)}
	var fresh []string
	for _, p := range participants {
		phone := jid.NormalizePhone(p.ID)
		created, err := c.db.Contacts.InsertIfAbsent(&store.Contact{
			ID:          p.ID,
			DisplayName: jid.FirstNonEmpty(p.PushName, p.Notify, phone),
			Phone:       phone,
			Instance:    inst.ID,
			Groups:      []string{groupJID},
		})
		if err != nil {
			c.log.Warnf("Failed to import %s: %v", p.ID, err)
			continue
		}
		if created {
			res.Imported++
			fresh = append(fresh, p.ID)
			continue
		}
		res.Existing++
		if err := c.db.Contacts.AddGroup(p.ID, groupJID); err != nil {
			c.log.Warnf("Failed to record membership of %s in %s: %v", p.ID, groupJID, err)
		}
	}

	c.recordSync(TypeMembers)
	c.journal.Success("Imported %d new identities from %s", res.Imported, groupJID)

	if len(fresh) > 0 && c.enricher != nil {
		batch, err := c.enricher.Batch(ctx, fresh, c.settings().Persona)
		res.Batch = batch
		if err != nil {
			return res, fmt.Errorf("enrich imported members: %w", err)
		}
	}
	return res, nil
}

// SyncHistory imports recent messages of a group, discarding empty bodies,
// and scores a small sample of them. Senders not yet known become contacts
// and are evaluated as a batch once their messages are stored.
func (c *Coordinator) SyncHistory(ctx context.Context, groupJID string) (*HistoryResult, error) {
	inst, group := c.groupContext(groupJID)
	limit := c.cfg.HistoryLimit
	scoring := true
	if group != nil {
		if group.HistoryLimit > 0 {
			limit = group.HistoryLimit
		}
		scoring = group.EnableScoring
	}

	c.journal.Info("Fetching history of %s...", groupJID)
	raw, err := c.gateway.FetchHistory(ctx, inst.Name, groupJID, limit)
	if err != nil {
		c.journal.Error(err, "History sync failed for %s", groupJID)
		return nil, err
	}

	res := &HistoryResult{Fetched: len(raw)}
	var kept []*store.Message
	var fresh []string
	for _, r := range raw {
		msg := toMessage(r, groupJID, inst.ID)
		if msg == nil {
			res.Discarded++
			continue
		}
		if !msg.FromMe && c.upsertSender(msg, groupJID) {
			fresh = append(fresh, msg.SenderID)
		}
		added, err := c.db.Messages.Put(msg)
		if err != nil {
			if !errors.Is(err, store.ErrEmptyBody) {
				c.log.Warnf("Failed to store message %s: %v", msg.ID, err)
			}
			res.Discarded++
			continue
		}
		if added {
			res.Imported++
		}
		kept = append(kept, msg)
	}

	c.recordSync(TypeHistory)
	c.journal.Success("Imported %d messages from %s", res.Imported, groupJID)

	if scoring && c.analyzer != nil {
		settings := c.settings()
		for _, msg := range c.sample(kept) {
			if _, err := c.analyzer.Analyze(ctx, msg, settings); err != nil {
				c.log.Warnf("Sampled analysis of %s failed: %v", msg.ID, err)
				continue
			}
			res.Analyzed++
		}
	}

	res.Senders = len(fresh)
	if len(fresh) > 0 && c.enricher != nil {
		batch, err := c.enricher.Batch(ctx, fresh, c.settings().Persona)
		res.Batch = batch
		if err != nil {
			return res, fmt.Errorf("enrich new senders: %w", err)
		}
	}
	return res, nil
}

// SyncMonitored walks every monitored group in turn, importing members and
// history as each group's preferences allow. A failing group does not stop
// the sweep; a configuration error does.
func (c *Coordinator) SyncMonitored(ctx context.Context) (*MonitoredResult, error) {
	groups, err := c.db.Groups.ListMonitored()
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored groups: %w", err)
	}

	res := &MonitoredResult{}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Groups++
		failed := false
		if g.ImportMembers {
			if _, err := c.SyncMembers(ctx, g.JID); err != nil {
				if fault.Is(err, fault.KindConfig) {
					return res, err
				}
				failed = true
			}
		}
		if g.SyncHistory {
			if _, err := c.SyncHistory(ctx, g.JID); err != nil {
				if fault.Is(err, fault.KindConfig) {
					return res, err
				}
				failed = true
			}
		}
		if failed {
			res.Failed++
		}
	}

	c.recordSync(TypeMonitored)
	c.journal.Success("Monitored sweep finished: %d groups, %d failed", res.Groups, res.Failed)
	return res, nil
}

// sample returns those of the first SampleSize messages not sent by us that
// have not been analyzed yet. It never looks further down the history, so a
// re-sync of the same window scores nothing new.
func (c *Coordinator) sample(msgs []*store.Message) []*store.Message {
	size := c.cfg.SampleSize
	if size <= 0 {
		return nil
	}
	var out []*store.Message
	taken := 0
	for _, m := range msgs {
		if taken == size {
			break
		}
		if m.FromMe {
			continue
		}
		taken++
		done, err := c.db.Analyses.Has(m.ID)
		if err != nil {
			c.log.Warnf("Failed to check analysis of %s: %v", m.ID, err)
			continue
		}
		if !done {
			out = append(out, m)
		}
	}
	return out
}

// upsertSender records the author of msg and reports whether the contact is new.
func (c *Coordinator) upsertSender(msg *store.Message, groupJID string) bool {
	if !jid.IsUser(msg.SenderID) {
		return false
	}
	var groups []string
	if msg.ChatJID != "" {
		groups = []string{msg.ChatJID}
	}
	created, err := c.db.Contacts.Upsert(&store.Contact{
		ID:          msg.SenderID,
		DisplayName: msg.SenderName,
		Phone:       jid.NormalizePhone(msg.SenderID),
		Instance:    msg.Instance,
		Groups:      groups,
	})
	if err != nil {
		c.log.Warnf("Failed to upsert sender %s of %s: %v", msg.SenderID, groupJID, err)
		return false
	}
	return created
}

// groupContext returns the instance a group was discovered on (the first
// instance when unknown) and the stored group, if any.
func (c *Coordinator) groupContext(groupJID string) (config.InstanceConfig, *store.Group) {
	g, err := c.db.Groups.Get(groupJID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Warnf("Failed to load group %s: %v", groupJID, err)
		}
		return c.instanceFor(0), nil
	}
	return c.instanceFor(g.Instance), g
}

// toMessage converts a raw gateway message. It returns nil when the body is
// empty or the message has no id. Direct messages carry no chat JID.
func toMessage(r gateway.HistoryMessage, groupJID string, instance int) *store.Message {
	if r.ID == "" || jid.FirstNonEmpty(r.Body) == "" {
		return nil
	}
	remote := jid.FirstNonEmpty(r.RemoteJID, groupJID)
	var chat string
	if jid.IsGroup(remote) {
		chat = remote
	}
	return &store.Message{
		ID:         r.ID,
		ChatJID:    chat,
		SenderID:   jid.FirstNonEmpty(r.Participant, remote),
		SenderName: r.PushName,
		Body:       r.Body,
		Timestamp:  time.Unix(r.Timestamp, 0),
		FromMe:     r.FromMe,
		Instance:   instance,
	}
}

func (c *Coordinator) recordSync(syncType string) {
	err := c.db.SyncState.Put(&store.SyncState{
		SyncType:   syncType,
		LastSyncAt: time.Now(),
	})
	if err != nil {
		c.log.Warnf("Failed to persist sync state for %s: %v", syncType, err)
	}
}

// LastSync returns when syncType last completed, or the zero time.
func (c *Coordinator) LastSync(syncType string) time.Time {
	state, err := c.db.SyncState.Get(syncType)
	if err != nil || state == nil {
		return time.Time{}
	}
	return state.LastSyncAt
}
