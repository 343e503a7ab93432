package protocol

// SchemaDDL defines the SQLite schema for the navi orchestrator database.
// Tables: sessions, messages, decisions, deliverables, questions, events.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Session hierarchy, status and cost accumulators
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    parent_id TEXT,
    root_id TEXT NOT NULL,
    depth INTEGER NOT NULL DEFAULT 0,
    role TEXT,
    task TEXT,
    status TEXT NOT NULL DEFAULT 'working',
    runtime_session_id TEXT,
    cost_usd REAL NOT NULL DEFAULT 0,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Conversation side-effects (assistant/user/result turns, deliver injections)
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Append-only decision log, scoped by root session for sibling context
CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY,
    root_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    category TEXT,
    rationale TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS decisions_root_idx ON decisions(root_id, id DESC);

-- Child deliverables, injected into the parent conversation on deliver
CREATE TABLE IF NOT EXISTS deliverables (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL,
    type TEXT NOT NULL,
    summary TEXT NOT NULL,
    content TEXT NOT NULL,
    artifacts TEXT DEFAULT '[]',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Durable pending questions; they must survive a full client restart.
-- Permission requests are not persisted: they die with their subprocess.
CREATE TABLE IF NOT EXISTS questions (
    request_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Orchestrator event log: all session/process lifecycle events
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    session_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
