package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// EnrichmentState tracks how far a contact has progressed through enrichment.
type EnrichmentState string

const (
	StateUnseen    EnrichmentState = "unseen"
	StateEvaluated EnrichmentState = "evaluated"
	StateEnriching EnrichmentState = "enriching"
	StateEnriched  EnrichmentState = "enriched"
)

func (s EnrichmentState) rank() int {
	switch s {
	case StateEvaluated:
		return 1
	case StateEnriching:
		return 2
	case StateEnriched:
		return 3
	}
	return 0
}

// Enrichment is the current AI-derived profile of a contact.
type Enrichment struct {
	Role      string    `json:"role"`
	Industry  string    `json:"industry"`
	Summary   string    `json:"summary"`
	Score     int       `json:"score"`
	Provider  string    `json:"provider"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResearchEntry is one immutable line of a contact's research log.
type ResearchEntry struct {
	Date     time.Time `json:"date"`
	Provider string    `json:"provider"`
	Summary  string    `json:"result"`
}

func (e ResearchEntry) key() string {
	return fmt.Sprintf("%d|%s|%s", e.Date.UnixMilli(), e.Provider, e.Summary)
}

// Contact is one messaging identity.
type Contact struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"name"`
	Phone       string          `json:"phone"`
	Instance    int             `json:"instance,omitempty"`
	Groups      []string        `json:"groups"`
	Enrichment  *Enrichment     `json:"enrichment,omitempty"`
	ResearchLog []ResearchEntry `json:"research_log"`
	Relevance   int             `json:"relevance"`
	State       EnrichmentState `json:"enrichment_state"`

	// MessageCount is derived from the message store on read.
	MessageCount int `json:"message_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the contact has at least one stored message.
func (c *Contact) Active() bool {
	return c.MessageCount > 0
}

// Merge combines two records for the same identity. Group memberships are
// unioned, the longer research log is kept and extended with any entries only
// the other record has, and the more recent enrichment wins. Scalar fields
// prefer b when set.
func Merge(a, b *Contact) *Contact {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	out := *a
	out.DisplayName = coalesceString(b.DisplayName, a.DisplayName)
	out.Phone = coalesceString(b.Phone, a.Phone)
	if b.Instance != 0 {
		out.Instance = b.Instance
	}

	out.Groups = unionStrings(a.Groups, b.Groups)
	out.ResearchLog = mergeResearch(a.ResearchLog, b.ResearchLog)

	switch {
	case a.Enrichment == nil:
		out.Enrichment = b.Enrichment
	case b.Enrichment != nil && b.Enrichment.UpdatedAt.After(a.Enrichment.UpdatedAt):
		out.Enrichment = b.Enrichment
	}
	if out.Enrichment != nil {
		out.Relevance = out.Enrichment.Score
	}

	if b.State.rank() > a.State.rank() {
		out.State = b.State
	}
	if out.State == "" {
		out.State = StateUnseen
	}
	if out.MessageCount < b.MessageCount {
		out.MessageCount = b.MessageCount
	}
	if out.CreatedAt.IsZero() || (!b.CreatedAt.IsZero() && b.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = b.CreatedAt
	}
	if b.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = b.UpdatedAt
	}
	return &out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeResearch(a, b []ResearchEntry) []ResearchEntry {
	base, other := a, b
	if len(b) > len(a) {
		base, other = b, a
	}
	seen := make(map[string]bool, len(base))
	out := make([]ResearchEntry, 0, len(base)+len(other))
	for _, e := range base {
		seen[e.key()] = true
		out = append(out, e)
	}
	for _, e := range other {
		if !seen[e.key()] {
			seen[e.key()] = true
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// ContactStore handles contact operations.
type ContactStore struct {
	store *Store
}

// NewContactStore creates a new ContactStore.
func NewContactStore(s *Store) *ContactStore {
	return &ContactStore{store: s}
}

const contactColumns = `
	c.id, c.display_name, c.phone, c.instance, c.enrichment, c.relevance, c.enrichment_state,
	c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM nexus_messages m WHERE m.sender_id = c.id)`

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	var phone, enrichment sql.NullString
	var instance, relevance sql.NullInt64
	var state string
	var createdAt, updatedAt int64

	err := row.Scan(&c.ID, &c.DisplayName, &phone, &instance, &enrichment, &relevance, &state,
		&createdAt, &updatedAt, &c.MessageCount)
	if err != nil {
		return nil, err
	}

	c.Phone = phone.String
	c.Instance = int(instance.Int64)
	c.Relevance = int(relevance.Int64)
	c.State = EnrichmentState(state)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	if enrichment.Valid && enrichment.String != "" {
		var e Enrichment
		if err := json.Unmarshal([]byte(enrichment.String), &e); err == nil {
			c.Enrichment = &e
		}
	}
	return &c, nil
}

// Get retrieves a contact by id, including memberships and research log.
func (s *ContactStore) Get(id string) (*Contact, error) {
	return s.get(s.store.db, id)
}

type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *ContactStore) get(q querier, id string) (*Contact, error) {
	row := q.QueryRow(`SELECT `+contactColumns+` FROM nexus_contacts c WHERE c.id = ?`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %s: %w", id, err)
	}
	if c.Groups, err = loadGroups(q, id); err != nil {
		return nil, err
	}
	if c.ResearchLog, err = loadResearch(q, id); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns every contact ordered by relevance, then name.
func (s *ContactStore) List() ([]*Contact, error) {
	rows, err := s.store.Query(`SELECT ` + contactColumns + ` FROM nexus_contacts c
		ORDER BY COALESCE(c.relevance, 0) DESC, c.display_name`)
	if err != nil {
		return nil, err
	}

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		contacts = append(contacts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows must be closed before issuing the follow-up queries.
	for _, c := range contacts {
		if c.Groups, err = loadGroups(s.store.db, c.ID); err != nil {
			return nil, err
		}
		if c.ResearchLog, err = loadResearch(s.store.db, c.ID); err != nil {
			return nil, err
		}
	}
	return contacts, nil
}

// Count returns the number of stored contacts.
func (s *ContactStore) Count() (int, error) {
	var n int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM nexus_contacts`).Scan(&n)
	return n, err
}

// Upsert stores c, merging with any existing record for the same id.
// It reports whether a new contact was created.
func (s *ContactStore) Upsert(c *Contact) (bool, error) {
	if c.ID == "" {
		return false, fmt.Errorf("contact id is required")
	}
	created := false
	err := s.store.withTx(func(tx *sql.Tx) error {
		existing, err := s.get(tx, c.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			created = true
		case err != nil:
			return err
		}
		merged := Merge(existing, c)
		return writeContact(tx, merged)
	})
	return created, err
}

// InsertIfAbsent stores c only when no contact with the same id exists.
func (s *ContactStore) InsertIfAbsent(c *Contact) (bool, error) {
	if c.ID == "" {
		return false, fmt.Errorf("contact id is required")
	}
	created := false
	err := s.store.withTx(func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM nexus_contacts WHERE id = ?`, c.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		created = true
		return writeContact(tx, Merge(nil, c))
	})
	return created, err
}

// AddGroup records a membership; memberships are a set so repeats are no-ops.
func (s *ContactStore) AddGroup(contactID, groupJID string) error {
	_, err := s.store.Exec(`INSERT OR IGNORE INTO nexus_contact_groups (contact_id, group_jid) VALUES (?, ?)`,
		contactID, groupJID)
	return err
}

// SetState moves a contact to a new enrichment state.
func (s *ContactStore) SetState(id string, state EnrichmentState) error {
	res, err := s.store.Exec(`UPDATE nexus_contacts SET enrichment_state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveEnrichment replaces the current enrichment, mirrors its score into the
// relevance column and appends entry to the research log in one transaction.
func (s *ContactStore) SaveEnrichment(id string, e *Enrichment, entry ResearchEntry) (*Contact, error) {
	var out *Contact
	err := s.store.withTx(func(tx *sql.Tx) error {
		current, err := s.get(tx, id)
		if err != nil {
			return err
		}
		current.Enrichment = e
		current.Relevance = e.Score
		current.State = StateEnriched
		current.ResearchLog = mergeResearch(current.ResearchLog, []ResearchEntry{entry})
		current.UpdatedAt = time.Now()
		if err := writeContact(tx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	return out, err
}

func writeContact(q querier, c *Contact) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.State == "" {
		c.State = StateUnseen
	}
	name := strings.TrimSpace(c.DisplayName)
	if name == "" {
		name = c.ID
	}

	var enrichment sql.NullString
	var relevance sql.NullInt64
	if c.Enrichment != nil {
		enrichment = jsonMarshal(c.Enrichment)
		relevance = sql.NullInt64{Int64: int64(c.Enrichment.Score), Valid: true}
	}

	_, err := q.Exec(`
		INSERT INTO nexus_contacts (id, display_name, phone, instance, enrichment, relevance, enrichment_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			phone = COALESCE(excluded.phone, nexus_contacts.phone),
			instance = COALESCE(excluded.instance, nexus_contacts.instance),
			enrichment = COALESCE(excluded.enrichment, nexus_contacts.enrichment),
			relevance = COALESCE(excluded.relevance, nexus_contacts.relevance),
			enrichment_state = excluded.enrichment_state,
			updated_at = excluded.updated_at
	`, c.ID, name, nullString(c.Phone), nullInt(c.Instance), enrichment, relevance,
		string(c.State), c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write contact %s: %w", c.ID, err)
	}

	for _, g := range c.Groups {
		if _, err := q.Exec(`INSERT OR IGNORE INTO nexus_contact_groups (contact_id, group_jid) VALUES (?, ?)`, c.ID, g); err != nil {
			return fmt.Errorf("failed to write membership %s/%s: %w", c.ID, g, err)
		}
	}

	// Oldest first so seq order matches chronological order.
	for i := len(c.ResearchLog) - 1; i >= 0; i-- {
		e := c.ResearchLog[i]
		if _, err := q.Exec(`INSERT OR IGNORE INTO nexus_research_log (contact_id, recorded_at, provider, summary) VALUES (?, ?, ?, ?)`,
			c.ID, e.Date.UnixMilli(), e.Provider, e.Summary); err != nil {
			return fmt.Errorf("failed to append research log for %s: %w", c.ID, err)
		}
	}
	return nil
}

func loadGroups(q querier, contactID string) ([]string, error) {
	rows, err := q.Query(`SELECT group_jid FROM nexus_contact_groups WHERE contact_id = ? ORDER BY group_jid`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func loadResearch(q querier, contactID string) ([]ResearchEntry, error) {
	rows, err := q.Query(`SELECT recorded_at, provider, summary FROM nexus_research_log
		WHERE contact_id = ? ORDER BY recorded_at DESC, seq DESC`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ResearchEntry{}
	for rows.Next() {
		var e ResearchEntry
		var at int64
		if err := rows.Scan(&at, &e.Provider, &e.Summary); err != nil {
			return nil, err
		}
		e.Date = fromMillis(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
