package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GroupPrefs are the user-set sync preferences of a group.
type GroupPrefs struct {
	Monitoring    bool `json:"monitoring"`
	ImportMembers bool `json:"import_members"`
	SyncHistory   bool `json:"sync_history"`
	EnableScoring bool `json:"enable_scoring"`
	HistoryLimit  int  `json:"history_limit"`
}

// DefaultGroupPrefs returns the preferences given to newly discovered groups.
func DefaultGroupPrefs(historyLimit int) GroupPrefs {
	return GroupPrefs{
		Monitoring:    true,
		ImportMembers: true,
		SyncHistory:   true,
		EnableScoring: true,
		HistoryLimit:  historyLimit,
	}
}

// Group is one monitored chat, keyed by its gateway JID.
type Group struct {
	JID         string `json:"jid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"member_count"`
	Instance    int    `json:"instance,omitempty"`
	GroupPrefs

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupStore handles group operations.
type GroupStore struct {
	store *Store
}

// NewGroupStore creates a new GroupStore.
func NewGroupStore(s *Store) *GroupStore {
	return &GroupStore{store: s}
}

// Upsert refreshes gateway-owned fields of a group. Preferences of an existing
// group are left untouched; new groups take g.GroupPrefs.
func (s *GroupStore) Upsert(g *Group) error {
	if g.JID == "" {
		return fmt.Errorf("group jid is required")
	}
	now := time.Now().UnixMilli()
	_, err := s.store.Exec(`
		INSERT INTO nexus_groups (
			jid, name, description, member_count, instance,
			monitoring, import_members, sync_history, enable_scoring, history_limit,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = excluded.name,
			description = COALESCE(excluded.description, nexus_groups.description),
			member_count = excluded.member_count,
			instance = COALESCE(excluded.instance, nexus_groups.instance),
			updated_at = excluded.updated_at
	`,
		g.JID, g.Name, nullString(g.Description), g.MemberCount, nullInt(g.Instance),
		boolToInt(g.Monitoring), boolToInt(g.ImportMembers), boolToInt(g.SyncHistory),
		boolToInt(g.EnableScoring), g.HistoryLimit, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert group %s: %w", g.JID, err)
	}
	return nil
}

// UpdatePrefs replaces the sync preferences of a stored group.
func (s *GroupStore) UpdatePrefs(jid string, p GroupPrefs) error {
	res, err := s.store.Exec(`
		UPDATE nexus_groups SET
			monitoring = ?, import_members = ?, sync_history = ?, enable_scoring = ?, history_limit = ?,
			updated_at = ?
		WHERE jid = ?
	`, boolToInt(p.Monitoring), boolToInt(p.ImportMembers), boolToInt(p.SyncHistory),
		boolToInt(p.EnableScoring), p.HistoryLimit, time.Now().UnixMilli(), jid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const groupColumns = `jid, name, description, member_count, instance,
	monitoring, import_members, sync_history, enable_scoring, history_limit,
	created_at, updated_at`

func scanGroup(row rowScanner) (*Group, error) {
	var g Group
	var desc sql.NullString
	var instance sql.NullInt64
	var monitoring, importMembers, syncHistory, enableScoring int
	var createdAt, updatedAt int64

	err := row.Scan(&g.JID, &g.Name, &desc, &g.MemberCount, &instance,
		&monitoring, &importMembers, &syncHistory, &enableScoring, &g.HistoryLimit,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	g.Description = desc.String
	g.Instance = int(instance.Int64)
	g.Monitoring = intToBool(monitoring)
	g.ImportMembers = intToBool(importMembers)
	g.SyncHistory = intToBool(syncHistory)
	g.EnableScoring = intToBool(enableScoring)
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)
	return &g, nil
}

// Get retrieves a group by JID.
func (s *GroupStore) Get(jid string) (*Group, error) {
	g, err := scanGroup(s.store.QueryRow(`SELECT `+groupColumns+` FROM nexus_groups WHERE jid = ?`, jid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return g, err
}

// List returns all groups ordered by name.
func (s *GroupStore) List() ([]*Group, error) {
	return s.list(`SELECT ` + groupColumns + ` FROM nexus_groups ORDER BY name, jid`)
}

// ListMonitored returns groups with monitoring enabled, ordered by name.
func (s *GroupStore) ListMonitored() ([]*Group, error) {
	return s.list(`SELECT ` + groupColumns + ` FROM nexus_groups WHERE monitoring = 1 ORDER BY name, jid`)
}

func (s *GroupStore) list(query string) ([]*Group, error) {
	rows, err := s.store.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []*Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Count returns the number of stored groups.
func (s *GroupStore) Count() (int, error) {
	var n int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM nexus_groups`).Scan(&n)
	return n, err
}
