package store

// schema contains all table definitions.
//
// Tables:
//   - nexus_contacts - Identities with current enrichment
//   - nexus_contact_groups - Group memberships (set semantics)
//   - nexus_research_log - Append-only enrichment history
//   - nexus_groups - Monitored chats and their sync preferences
//   - nexus_messages - Inbound messages (immutable)
//   - nexus_analyses - One row per scored message
//   - nexus_triage - Triage queue entries and their outcome
//   - nexus_sync_state - Sync progress tracking
const schema = `
CREATE TABLE IF NOT EXISTS nexus_contacts (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    phone TEXT,
    instance INTEGER,
    enrichment TEXT,
    relevance INTEGER,
    enrichment_state TEXT NOT NULL DEFAULT 'unseen',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS nexus_contact_groups (
    contact_id TEXT NOT NULL REFERENCES nexus_contacts(id),
    group_jid TEXT NOT NULL,
    PRIMARY KEY (contact_id, group_jid)
);

CREATE TABLE IF NOT EXISTS nexus_research_log (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    contact_id TEXT NOT NULL REFERENCES nexus_contacts(id),
    recorded_at INTEGER NOT NULL,
    provider TEXT NOT NULL,
    summary TEXT NOT NULL,
    UNIQUE (contact_id, recorded_at, provider, summary)
);
CREATE INDEX IF NOT EXISTS idx_nexus_research_contact ON nexus_research_log(contact_id);

CREATE TABLE IF NOT EXISTS nexus_groups (
    jid TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    member_count INTEGER NOT NULL DEFAULT 0,
    instance INTEGER,
    monitoring INTEGER NOT NULL DEFAULT 1,
    import_members INTEGER NOT NULL DEFAULT 1,
    sync_history INTEGER NOT NULL DEFAULT 1,
    enable_scoring INTEGER NOT NULL DEFAULT 1,
    history_limit INTEGER NOT NULL DEFAULT 20,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS nexus_messages (
    id TEXT PRIMARY KEY,
    chat_jid TEXT,
    sender_id TEXT NOT NULL,
    sender_name TEXT,
    body TEXT NOT NULL CHECK (body <> ''),
    timestamp INTEGER NOT NULL,
    from_me INTEGER NOT NULL DEFAULT 0,
    instance INTEGER,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nexus_messages_sender ON nexus_messages(sender_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_nexus_messages_chat ON nexus_messages(chat_jid, timestamp);

CREATE TABLE IF NOT EXISTS nexus_analyses (
    message_id TEXT PRIMARY KEY,
    score INTEGER NOT NULL,
    intent TEXT,
    admitted INTEGER NOT NULL DEFAULT 0,
    analyzed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS nexus_triage (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    message_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    sender_name TEXT,
    group_jid TEXT,
    body TEXT NOT NULL,
    score INTEGER NOT NULL,
    intent TEXT,
    reasoning TEXT,
    group_draft TEXT,
    dm_draft TEXT,
    instance INTEGER,
    status TEXT NOT NULL DEFAULT 'queued',
    created_at INTEGER NOT NULL,
    closed_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nexus_triage_open ON nexus_triage(message_id) WHERE status = 'queued';

CREATE TABLE IF NOT EXISTS nexus_sync_state (
    sync_type TEXT PRIMARY KEY,
    last_sync_at INTEGER NOT NULL,
    sync_progress INTEGER,
    sync_data TEXT
);
`
