package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateEntry is returned when a message already has a queued entry.
var ErrDuplicateEntry = errors.New("message already queued")

// EntryStatus is the lifecycle state of a triage entry.
type EntryStatus string

const (
	StatusQueued   EntryStatus = "queued"
	StatusDeployed EntryStatus = "deployed"
	StatusArchived EntryStatus = "archived"
)

// TriageEntry is a scored message awaiting a human decision. It holds
// reference copies of the message and sender identifiers.
type TriageEntry struct {
	ID         string      `json:"id"`
	MessageID  string      `json:"message_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	GroupJID   string      `json:"group_jid,omitempty"`
	Body       string      `json:"message_body"`
	Score      int         `json:"value_score"`
	Intent     string      `json:"intent"`
	Reasoning  string      `json:"reasoning"`
	GroupDraft string      `json:"group_draft"`
	DMDraft    string      `json:"dm_draft"`
	Instance   int         `json:"instance,omitempty"`
	Status     EntryStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ClosedAt   time.Time   `json:"closed_at,omitempty"`
}

// TriageStore handles triage entry persistence.
type TriageStore struct {
	store *Store
}

// NewTriageStore creates a new TriageStore.
func NewTriageStore(s *Store) *TriageStore {
	return &TriageStore{store: s}
}

// Insert adds a queued entry. A second open entry for the same message
// is rejected with ErrDuplicateEntry.
func (s *TriageStore) Insert(e *TriageEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Status = StatusQueued
	_, err := s.store.Exec(`
		INSERT INTO nexus_triage (
			id, message_id, sender_id, sender_name, group_jid, body, score, intent, reasoning,
			group_draft, dm_draft, instance, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.MessageID, e.SenderID, nullString(e.SenderName), nullString(e.GroupJID), e.Body, e.Score,
		nullString(e.Intent), nullString(e.Reasoning), nullString(e.GroupDraft), nullString(e.DMDraft),
		nullInt(e.Instance), string(e.Status), e.CreatedAt.UnixMilli())
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert triage entry: %w", err)
	}
	return nil
}

const triageColumns = `id, message_id, sender_id, sender_name, group_jid, body, score, intent, reasoning,
	group_draft, dm_draft, instance, status, created_at, closed_at`

func scanEntry(row rowScanner) (*TriageEntry, error) {
	var e TriageEntry
	var name, group, intent, reasoning, groupDraft, dmDraft sql.NullString
	var instance, closedAt sql.NullInt64
	var status string
	var createdAt int64

	err := row.Scan(&e.ID, &e.MessageID, &e.SenderID, &name, &group, &e.Body, &e.Score, &intent, &reasoning,
		&groupDraft, &dmDraft, &instance, &status, &createdAt, &closedAt)
	if err != nil {
		return nil, err
	}
	e.SenderName = name.String
	e.GroupJID = group.String
	e.Intent = intent.String
	e.Reasoning = reasoning.String
	e.GroupDraft = groupDraft.String
	e.DMDraft = dmDraft.String
	e.Instance = int(instance.Int64)
	e.Status = EntryStatus(status)
	e.CreatedAt = fromMillis(createdAt)
	e.ClosedAt = fromNullMillis(closedAt)
	return &e, nil
}

// Get retrieves an entry by id regardless of status.
func (s *TriageStore) Get(id string) (*TriageEntry, error) {
	e, err := scanEntry(s.store.QueryRow(`SELECT `+triageColumns+` FROM nexus_triage WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// OpenForMessage returns the queued entry for a message, if any.
func (s *TriageStore) OpenForMessage(messageID string) (*TriageEntry, error) {
	e, err := scanEntry(s.store.QueryRow(`SELECT `+triageColumns+` FROM nexus_triage
		WHERE message_id = ? AND status = ?`, messageID, string(StatusQueued)))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListQueued returns open entries, most recently admitted first.
func (s *TriageStore) ListQueued() ([]*TriageEntry, error) {
	rows, err := s.store.Query(`SELECT `+triageColumns+` FROM nexus_triage
		WHERE status = ? ORDER BY seq DESC`, string(StatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*TriageEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close moves a queued entry to a terminal status. Closing an entry that is
// not queued returns ErrNotFound.
func (s *TriageStore) Close(id string, status EntryStatus) error {
	res, err := s.store.Exec(`UPDATE nexus_triage SET status = ?, closed_at = ? WHERE id = ? AND status = ?`,
		string(status), time.Now().UnixMilli(), id, string(StatusQueued))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountQueued returns the number of open entries.
func (s *TriageStore) CountQueued() (int, error) {
	var n int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM nexus_triage WHERE status = ?`, string(StatusQueued)).Scan(&n)
	return n, err
}
