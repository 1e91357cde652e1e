package storage

// schema defines every logical table named in §3/§6: memory spaces,
// users, agents, conversations and their messages, versioned vector
// memories, facts, and the context tree. No foreign keys: referential
// integrity across layers is enforced by the orchestrator, the same
// choice the temporal notes/entities/edges tables made upstream.
const schema = `
CREATE TABLE IF NOT EXISTS memory_spaces (
    memory_space_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    dimension INTEGER NOT NULL DEFAULT 0,
    owner_user_id TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_spaces_owner ON memory_spaces(owner_user_id);

CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    display_name TEXT,
    email TEXT,
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS agents (
    agent_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    capabilities TEXT,
    provider TEXT
);

CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    memory_space_id TEXT NOT NULL,
    type TEXT NOT NULL,
    participants TEXT,
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    archived_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_conversations_space ON conversations(memory_space_id);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    UNIQUE (conversation_id, position)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

-- Memories (Layer 2), temporal versioning: composite PK (memory_id,
-- version) mirrors the notes table's valid_from/valid_to/is_current
-- pattern, scoped here to a per-memory version cap instead of
-- wall-clock time ranges.
CREATE TABLE IF NOT EXISTS memories (
    memory_id TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    memory_space_id TEXT NOT NULL,
    content TEXT NOT NULL,
    content_type TEXT NOT NULL,
    embedding BLOB,
    embedding_dim INTEGER NOT NULL DEFAULT 0,
    user_id TEXT,
    source TEXT,
    conversation_id TEXT,
    message_ids TEXT,
    tags TEXT,
    importance INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    archived_at INTEGER,
    is_current INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (memory_id, version)
);

CREATE INDEX IF NOT EXISTS idx_memories_current ON memories(memory_space_id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS facts (
    fact_id TEXT PRIMARY KEY,
    memory_space_id TEXT NOT NULL,
    fact TEXT NOT NULL,
    fact_type TEXT NOT NULL,
    subject TEXT,
    predicate TEXT,
    object TEXT,
    slots TEXT,
    confidence INTEGER NOT NULL DEFAULT 0,
    source_type TEXT,
    source_ref TEXT,
    tags TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    supersedes TEXT,
    superseded_by TEXT,
    created_at INTEGER NOT NULL,
    archived_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_facts_space_subject_predicate ON facts(memory_space_id, subject, predicate);
CREATE INDEX IF NOT EXISTS idx_facts_space_status ON facts(memory_space_id, status);
CREATE INDEX IF NOT EXISTS idx_facts_conversation ON facts(memory_space_id, source_ref);

CREATE TABLE IF NOT EXISTS contexts (
    context_id TEXT PRIMARY KEY,
    memory_space_id TEXT NOT NULL,
    purpose TEXT NOT NULL,
    parent_id TEXT,
    depth INTEGER NOT NULL DEFAULT 0,
    child_ids TEXT,
    user_id TEXT,
    conversation_id TEXT,
    metadata TEXT,
    created_at INTEGER NOT NULL,
    archived_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_contexts_space_parent ON contexts(memory_space_id, parent_id);
`
