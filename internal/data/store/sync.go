package store

import (
	"database/sql"
	"time"
)

// SyncState represents the state of a sync operation.
type SyncState struct {
	SyncType     string    `json:"sync_type"`
	LastSyncAt   time.Time `json:"last_sync_at"`
	SyncProgress int       `json:"sync_progress"`
	SyncData     string    `json:"sync_data,omitempty"`
}

// SyncStateStore handles sync state persistence.
type SyncStateStore struct {
	store *Store
}

// NewSyncStateStore creates a new SyncStateStore.
func NewSyncStateStore(s *Store) *SyncStateStore {
	return &SyncStateStore{store: s}
}

// Put updates a sync state.
func (s *SyncStateStore) Put(state *SyncState) error {
	_, err := s.store.Exec(`
		INSERT INTO nexus_sync_state (sync_type, last_sync_at, sync_progress, sync_data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sync_type) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			sync_progress = excluded.sync_progress,
			sync_data = excluded.sync_data
	`, state.SyncType, state.LastSyncAt.Unix(), state.SyncProgress, nullString(state.SyncData))
	return err
}

func scanSyncState(row rowScanner) (*SyncState, error) {
	var state SyncState
	var ts int64
	var progress sql.NullInt64
	var data sql.NullString

	if err := row.Scan(&state.SyncType, &ts, &progress, &data); err != nil {
		return nil, err
	}
	state.LastSyncAt = time.Unix(ts, 0)
	state.SyncProgress = int(progress.Int64)
	state.SyncData = data.String
	return &state, nil
}

// Get retrieves the state for a sync type. A missing state returns nil, nil.
func (s *SyncStateStore) Get(syncType string) (*SyncState, error) {
	state, err := scanSyncState(s.store.QueryRow(`
		SELECT sync_type, last_sync_at, sync_progress, sync_data
		FROM nexus_sync_state WHERE sync_type = ?
	`, syncType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return state, err
}

// GetAll retrieves all sync states.
func (s *SyncStateStore) GetAll() ([]*SyncState, error) {
	rows, err := s.store.Query(`
		SELECT sync_type, last_sync_at, sync_progress, sync_data
		FROM nexus_sync_state ORDER BY sync_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}
