package neuralmem

const (
	queryGetPatternForUpsert = `SELECT id, content FROM patterns WHERE pattern_key = ?`
	queryInsertPattern       = `INSERT INTO patterns (pattern_key, pattern_type, content, context, embedding) VALUES (?, ?, ?, ?, ?)`
	queryUpdatePattern       = `UPDATE patterns SET pattern_type = ?, content = ?, context = ?, last_modified = datetime('now') WHERE id = ?`
	queryUpdateEmbedding     = `UPDATE patterns SET embedding = ? WHERE id = ?`

	queryPatternCols        = `id, pattern_key, pattern_type, content, context, embedding, quality_score, score_stale, usage_count, success_count, failure_count, created_at, last_used, last_modified`
	queryGetPatternByKey    = `SELECT ` + queryPatternCols + ` FROM patterns WHERE pattern_key = ?`
	queryGetPatternByID     = `SELECT ` + queryPatternCols + ` FROM patterns WHERE id = ?`
	querySearchPatternsPre  = `SELECT ` + queryPatternCols + ` FROM patterns WHERE (pattern_key LIKE ? OR content LIKE ?)`
	querySearchPatternsSuf  = ` ORDER BY quality_score DESC, last_modified DESC LIMIT ?`
	queryRecordUsage        = `UPDATE patterns SET usage_count = usage_count + 1, success_count = success_count + ?, failure_count = failure_count + ?, last_used = datetime('now'), score_stale = 1 WHERE id = ?`
	queryBumpBridgeCounters = `UPDATE context_bridges SET usage_count = usage_count + 1, success_count = success_count + ? WHERE pattern_id = ?`

	queryScoreInputs  = `SELECT usage_count, success_count, failure_count FROM patterns WHERE id = ?`
	queryBridgeSpread = `SELECT COUNT(DISTINCT target_context) FROM context_bridges WHERE pattern_id = ?`
	queryWriteScore   = `UPDATE patterns SET quality_score = ?, score_stale = 0 WHERE id = ?`
	queryDirtyIDs     = `SELECT id FROM patterns WHERE score_stale = 1`

	queryInsertVecPattern = `INSERT INTO vec_patterns (pattern_id, embedding) VALUES (?, ?)`
	queryDeleteVecPattern = `DELETE FROM vec_patterns WHERE pattern_id = ?`

	queryGetBridge    = `SELECT id, confidence FROM context_bridges WHERE source_context = ? AND target_context = ? AND pattern_id = ?`
	queryInsertBridge = `INSERT INTO context_bridges (source_context, target_context, pattern_id, confidence) VALUES (?, ?, ?, ?)`
	queryRaiseBridge  = `UPDATE context_bridges SET confidence = ? WHERE id = ?`
	queryBridgeCols   = `id, source_context, target_context, pattern_id, confidence, usage_count, success_count, created_at`
	queryGetBridges   = `SELECT ` + queryBridgeCols + ` FROM context_bridges WHERE source_context = ? OR target_context = ? ORDER BY confidence DESC`

	queryUpsertRelationship = `INSERT INTO pattern_relationships (pattern_a, pattern_b, relationship_type, strength)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pattern_a, pattern_b, relationship_type) DO UPDATE SET
			strength = MIN(1.0, strength + ?),
			evidence_count = evidence_count + 1,
			updated_at = datetime('now')`
	queryGetRelationships = `SELECT id, pattern_a, pattern_b, relationship_type, strength, evidence_count, created_at, updated_at
		FROM pattern_relationships WHERE pattern_a = ? OR pattern_b = ? ORDER BY strength DESC`

	queryInsertSession    = `INSERT INTO sessions (session_id, context, interface, llm_model) VALUES (?, ?, ?, ?)`
	querySessionCols      = `id, session_id, context, interface, llm_model, interaction_count, total_tokens_used, total_cost_usd, started_at, ended_at, state`
	queryGetSession       = `SELECT ` + querySessionCols + ` FROM sessions WHERE session_id = ?`
	querySessionForAppend = `SELECT id, state FROM sessions WHERE session_id = ?`
	queryNextSequence     = `SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM interactions WHERE session_db_id = ?`
	queryInsertInteraction = `INSERT INTO interactions
		(session_db_id, sequence_num, prompt, response, prompt_embedding, response_embedding, patterns, new_patterns, tokens_used, cost_usd, latency_ms, was_successful, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	queryBumpSessionCounters = `UPDATE sessions SET interaction_count = interaction_count + 1, total_tokens_used = total_tokens_used + ?, total_cost_usd = total_cost_usd + ? WHERE id = ?`
	queryCompleteSession     = `UPDATE sessions SET state = 'completed', ended_at = datetime('now') WHERE session_id = ? AND state <> 'completed'`
	querySetSessionState     = `UPDATE sessions SET state = ? WHERE session_id = ? AND state = ?`
	queryDeleteInteractions  = `DELETE FROM interactions WHERE session_db_id = ?`
	queryDeleteSession       = `DELETE FROM sessions WHERE id = ?`
	queryGetInteractions     = `SELECT id, session_db_id, sequence_num, prompt, response, patterns, new_patterns, tokens_used, cost_usd, latency_ms, was_successful, error_message, created_at
		FROM interactions WHERE session_db_id = ? ORDER BY sequence_num ASC`

	queryInsertEvent = `INSERT INTO learning_events (id, session_db_id, interaction_id, pattern_id, event_type, details) VALUES (?, ?, ?, ?, ?, ?)`
	queryEventCols   = `id, session_db_id, interaction_id, pattern_id, event_type, details, created_at`

	queryInsightCols = `id, insight_type, scope, title, payload, evidence, confidence, is_active, times_validated, created_at, updated_at`
)
