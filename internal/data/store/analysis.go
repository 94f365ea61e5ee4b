package store

import (
	"database/sql"
	"time"
)

// Analysis records that a message has been scored.
type Analysis struct {
	MessageID  string    `json:"message_id"`
	Score      int       `json:"score"`
	Intent     string    `json:"intent"`
	Admitted   bool      `json:"admitted"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// AnalysisStore handles analysis bookkeeping.
type AnalysisStore struct {
	store *Store
}

// NewAnalysisStore creates a new AnalysisStore.
func NewAnalysisStore(s *Store) *AnalysisStore {
	return &AnalysisStore{store: s}
}

// Put records the latest analysis of a message.
func (s *AnalysisStore) Put(a *Analysis) error {
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now()
	}
	_, err := s.store.Exec(`
		INSERT INTO nexus_analyses (message_id, score, intent, admitted, analyzed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			score = excluded.score,
			intent = excluded.intent,
			admitted = excluded.admitted,
			analyzed_at = excluded.analyzed_at
	`, a.MessageID, a.Score, nullString(a.Intent), boolToInt(a.Admitted), a.AnalyzedAt.UnixMilli())
	return err
}

// Get retrieves the analysis of a message.
func (s *AnalysisStore) Get(messageID string) (*Analysis, error) {
	var a Analysis
	var intent sql.NullString
	var admitted int
	var at int64
	err := s.store.QueryRow(`SELECT message_id, score, intent, admitted, analyzed_at FROM nexus_analyses WHERE message_id = ?`,
		messageID).Scan(&a.MessageID, &a.Score, &intent, &admitted, &at)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Intent = intent.String
	a.Admitted = intToBool(admitted)
	a.AnalyzedAt = fromMillis(at)
	return &a, nil
}

// Has reports whether a message has already been scored.
func (s *AnalysisStore) Has(messageID string) (bool, error) {
	var n int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM nexus_analyses WHERE message_id = ?`, messageID).Scan(&n)
	return n > 0, err
}
