package store

// Container provides unified access to all stores.
type Container struct {
	Store *Store

	Contacts  *ContactStore
	Groups    *GroupStore
	Messages  *MessageStore
	Analyses  *AnalysisStore
	Triage    *TriageStore
	SyncState *SyncStateStore
}

// NewContainer creates a new Container with all sub-stores initialized.
func NewContainer(s *Store) *Container {
	return &Container{
		Store:     s,
		Contacts:  NewContactStore(s),
		Groups:    NewGroupStore(s),
		Messages:  NewMessageStore(s),
		Analyses:  NewAnalysisStore(s),
		Triage:    NewTriageStore(s),
		SyncState: NewSyncStateStore(s),
	}
}

// Close closes the underlying store.
func (c *Container) Close() error {
	return c.Store.Close()
}

// Stats holds entity counts.
type Stats struct {
	Contacts int `json:"contacts"`
	Enriched int `json:"enriched"`
	Groups   int `json:"groups"`
	Messages int `json:"messages"`
	Queued   int `json:"queued"`
}

// GetStats returns current entity counts.
func (c *Container) GetStats() (*Stats, error) {
	stats := &Stats{}
	err := c.Store.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM nexus_contacts),
			(SELECT COUNT(*) FROM nexus_contacts WHERE enrichment_state = 'enriched'),
			(SELECT COUNT(*) FROM nexus_groups),
			(SELECT COUNT(*) FROM nexus_messages),
			(SELECT COUNT(*) FROM nexus_triage WHERE status = 'queued')
	`).Scan(&stats.Contacts, &stats.Enriched, &stats.Groups, &stats.Messages, &stats.Queued)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
