package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyBody is returned when a message without text is offered for storage.
var ErrEmptyBody = errors.New("message body is empty")

// Message is one inbound chat message. Stored messages are never mutated.
type Message struct {
	ID         string    `json:"id"`
	ChatJID    string    `json:"chat_jid,omitempty"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	FromMe     bool      `json:"from_me"`
	Instance   int       `json:"instance,omitempty"`
}

// MessageStore handles message operations.
type MessageStore struct {
	store *Store
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(s *Store) *MessageStore {
	return &MessageStore{store: s}
}

// Put stores a message if its id is new. It reports whether a row was added.
func (s *MessageStore) Put(m *Message) (bool, error) {
	if strings.TrimSpace(m.Body) == "" {
		return false, ErrEmptyBody
	}
	if m.ID == "" || m.SenderID == "" {
		return false, fmt.Errorf("message id and sender are required")
	}
	res, err := s.store.Exec(`
		INSERT OR IGNORE INTO nexus_messages (id, chat_jid, sender_id, sender_name, body, timestamp, from_me, instance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, nullString(m.ChatJID), m.SenderID, nullString(m.SenderName), m.Body,
		m.Timestamp.Unix(), boolToInt(m.FromMe), nullInt(m.Instance), time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to store message %s: %w", m.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const messageColumns = `id, chat_jid, sender_id, sender_name, body, timestamp, from_me, instance`

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var chat, name sql.NullString
	var ts int64
	var fromMe int
	var instance sql.NullInt64
	if err := row.Scan(&m.ID, &chat, &m.SenderID, &name, &m.Body, &ts, &fromMe, &instance); err != nil {
		return nil, err
	}
	m.ChatJID = chat.String
	m.SenderName = name.String
	m.Timestamp = time.Unix(ts, 0)
	m.FromMe = intToBool(fromMe)
	m.Instance = int(instance.Int64)
	return &m, nil
}

// Get retrieves a message by id.
func (s *MessageStore) Get(id string) (*Message, error) {
	m, err := scanMessage(s.store.QueryRow(`SELECT `+messageColumns+` FROM nexus_messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns the newest messages across all chats.
func (s *MessageStore) List(limit int) ([]*Message, error) {
	return s.list(`SELECT `+messageColumns+` FROM nexus_messages ORDER BY timestamp DESC, id LIMIT ?`, limit)
}

// ListByChat returns the newest messages of a group chat.
func (s *MessageStore) ListByChat(chatJID string, limit int) ([]*Message, error) {
	return s.list(`SELECT `+messageColumns+` FROM nexus_messages WHERE chat_jid = ?
		ORDER BY timestamp DESC, id LIMIT ?`, chatJID, limit)
}

// ListBySender returns a sender's messages, most recent first.
func (s *MessageStore) ListBySender(senderID string, limit int) ([]*Message, error) {
	return s.list(`SELECT `+messageColumns+` FROM nexus_messages WHERE sender_id = ?
		ORDER BY timestamp DESC, id LIMIT ?`, senderID, limit)
}

func (s *MessageStore) list(query string, args ...interface{}) ([]*Message, error) {
	rows, err := s.store.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Count returns the number of stored messages.
func (s *MessageStore) Count() (int, error) {
	var n int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM nexus_messages`).Scan(&n)
	return n, err
}
