package neuralmem

const schema = `
CREATE TABLE IF NOT EXISTS patterns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern_key TEXT NOT NULL UNIQUE,
    pattern_type TEXT NOT NULL,
    content TEXT NOT NULL,
    context TEXT NOT NULL,
    embedding BLOB,
    quality_score REAL DEFAULT 0,
    score_stale INTEGER DEFAULT 0,
    usage_count INTEGER DEFAULT 0,
    success_count INTEGER DEFAULT 0,
    failure_count INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now')),
    last_used DATETIME,
    last_modified DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_patterns_context ON patterns(context);
CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);
CREATE INDEX IF NOT EXISTS idx_patterns_stale ON patterns(score_stale);

CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL UNIQUE,
    context TEXT NOT NULL,
    interface TEXT,
    llm_model TEXT,
    interaction_count INTEGER DEFAULT 0,
    total_tokens_used INTEGER DEFAULT 0,
    total_cost_usd REAL DEFAULT 0,
    started_at DATETIME DEFAULT (datetime('now')),
    ended_at DATETIME,
    state TEXT DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_sessions_context ON sessions(context);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);

CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_db_id INTEGER NOT NULL REFERENCES sessions(id),
    sequence_num INTEGER NOT NULL,
    prompt TEXT,
    response TEXT,
    prompt_embedding BLOB,
    response_embedding BLOB,
    patterns TEXT,
    new_patterns TEXT,
    tokens_used INTEGER DEFAULT 0,
    cost_usd REAL DEFAULT 0,
    latency_ms INTEGER DEFAULT 0,
    was_successful INTEGER DEFAULT 1,
    error_message TEXT,
    created_at DATETIME DEFAULT (datetime('now')),
    UNIQUE(session_db_id, sequence_num)
);

CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_db_id);

CREATE TABLE IF NOT EXISTS context_bridges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_context TEXT NOT NULL,
    target_context TEXT NOT NULL,
    pattern_id INTEGER NOT NULL REFERENCES patterns(id),
    confidence REAL NOT NULL,
    usage_count INTEGER DEFAULT 0,
    success_count INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now')),
    UNIQUE(source_context, target_context, pattern_id)
);

CREATE INDEX IF NOT EXISTS idx_bridges_source ON context_bridges(source_context);
CREATE INDEX IF NOT EXISTS idx_bridges_target ON context_bridges(target_context);
CREATE INDEX IF NOT EXISTS idx_bridges_pattern ON context_bridges(pattern_id);

CREATE TABLE IF NOT EXISTS pattern_relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern_a INTEGER NOT NULL REFERENCES patterns(id),
    pattern_b INTEGER NOT NULL REFERENCES patterns(id),
    relationship_type TEXT NOT NULL,
    strength REAL DEFAULT 0.1,
    evidence_count INTEGER DEFAULT 1,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now')),
    UNIQUE(pattern_a, pattern_b, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_a ON pattern_relationships(pattern_a);
CREATE INDEX IF NOT EXISTS idx_relationships_b ON pattern_relationships(pattern_b);

CREATE TABLE IF NOT EXISTS learning_events (
    id TEXT PRIMARY KEY,
    session_db_id INTEGER,
    interaction_id INTEGER,
    pattern_id INTEGER,
    event_type TEXT NOT NULL,
    details TEXT,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_events_session ON learning_events(session_db_id);
CREATE INDEX IF NOT EXISTS idx_events_pattern ON learning_events(pattern_id);

CREATE TABLE IF NOT EXISTS global_insights (
    id TEXT PRIMARY KEY,
    insight_type TEXT NOT NULL,
    scope TEXT NOT NULL,
    title TEXT NOT NULL,
    payload TEXT NOT NULL,
    evidence TEXT,
    confidence REAL DEFAULT 0,
    is_active INTEGER DEFAULT 1,
    times_validated INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now')),
    UNIQUE(insight_type, scope)
);

CREATE INDEX IF NOT EXISTS idx_insights_active ON global_insights(is_active);
`

// vec_patterns mirrors patterns rows that carry an embedding. Cosine distance
// so similarity converts as 1 - distance.
const vecSchemaFmt = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_patterns USING vec0(
    pattern_id INTEGER PRIMARY KEY,
    embedding FLOAT[%d] distance_metric=cosine
);
`
