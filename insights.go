package neuralmem

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	InsightTopPatterns     = "top_patterns"
	InsightSuccessRate     = "success_rate"
	InsightSessionActivity = "session_activity"
)

const topPatternsPerContext = 5

type pendingInsight struct {
	Type       string
	Scope      string
	Title      string
	Payload    string
	Evidence   string
	Confidence float64
}

// RefreshInsights recomputes the derived rollups: top patterns per context,
// the global success rate, and per-day session activity. It reads a snapshot
// first and applies the result in one short transaction, so ingestion is
// never blocked for the duration of the computation and an abort leaves the
// previous insight set intact.
func (s *Store) RefreshInsights(ctx context.Context) error {
	pending, err := s.computeInsights(ctx)
	if err != nil {
		return fmt.Errorf("refresh insights: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh insights: %w", err)
	}

	err = s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		seen := make(map[string]bool, len(pending))
		for _, ins := range pending {
			if err := s.upsertInsightTx(tx, ins); err != nil {
				return err
			}
			seen[ins.Type+"\x00"+ins.Scope] = true
		}

		// retire insights whose supporting data disappeared
		rows, err := tx.Query(`SELECT id, insight_type, scope FROM global_insights WHERE is_active = 1`)
		if err != nil {
			return err
		}
		var retire []string
		for rows.Next() {
			var id, typ, scope string
			if err := rows.Scan(&id, &typ, &scope); err != nil {
				rows.Close()
				return err
			}
			if !seen[typ+"\x00"+scope] {
				retire = append(retire, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range retire {
			if _, err := tx.Exec(`UPDATE global_insights SET is_active = 0, updated_at = datetime('now') WHERE id = ?`, id); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("refresh insights: %w", err)
	}

	s.insightCache.Del("insights:active")
	s.insightCache.Del("insights:all")

	return nil
}

func (s *Store) computeInsights(ctx context.Context) ([]*pendingInsight, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var pending []*pendingInsight

	// top patterns per context, ranked by quality
	contexts, err := stringColumn(tx.QueryContext(ctx, `SELECT DISTINCT context FROM patterns ORDER BY context`))
	if err != nil {
		return nil, err
	}

	for _, c := range contexts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, pattern_key, quality_score
			FROM patterns
			WHERE context = ?
			ORDER BY quality_score DESC, usage_count DESC, last_modified DESC
			LIMIT ?`, c, topPatternsPerContext)
		if err != nil {
			return nil, err
		}

		type ranked struct {
			Key   string  `json:"key"`
			Score float64 `json:"score"`
		}
		var top []ranked
		var ids []int64
		var sum float64
		for rows.Next() {
			var id int64
			var r ranked
			if err := rows.Scan(&id, &r.Key, &r.Score); err != nil {
				rows.Close()
				return nil, err
			}
			top = append(top, r)
			ids = append(ids, id)
			sum += r.Score
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(top) == 0 {
			continue
		}

		payload, _ := json.Marshal(map[string]any{"patterns": top})
		evidence, _ := json.Marshal(ids)
		pending = append(pending, &pendingInsight{
			Type:       InsightTopPatterns,
			Scope:      "ctx:" + c,
			Title:      "Top patterns in " + c,
			Payload:    string(payload),
			Evidence:   string(evidence),
			Confidence: sum / float64(len(top)),
		})
	}

	// global pattern success rate
	var patternCount, successes, failures int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success_count), 0), COALESCE(SUM(failure_count), 0)
		FROM patterns`).Scan(&patternCount, &successes, &failures)
	if err != nil {
		return nil, err
	}

	if patternCount > 0 {
		rate := 0.5
		if successes+failures > 0 {
			rate = float64(successes) / float64(successes+failures)
		}
		payload, _ := json.Marshal(map[string]any{
			"patterns":  patternCount,
			"successes": successes,
			"failures":  failures,
			"rate":      rate,
		})
		pending = append(pending, &pendingInsight{
			Type:       InsightSuccessRate,
			Scope:      "global",
			Title:      "Global pattern success rate",
			Payload:    string(payload),
			Evidence:   "[]",
			Confidence: saturate(float64(successes + failures)),
		})
	}

	// session analytics grouped by day, context, and interface
	rows, err := tx.QueryContext(ctx, `
		SELECT date(started_at), context, COALESCE(interface, ''),
		       COUNT(*), COALESCE(SUM(interaction_count), 0),
		       COALESCE(SUM(total_tokens_used), 0), COALESCE(SUM(total_cost_usd), 0)
		FROM sessions
		GROUP BY date(started_at), context, interface`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day, c, iface string
		var sessions, interactions, tokens int
		var cost float64
		if err := rows.Scan(&day, &c, &iface, &sessions, &interactions, &tokens, &cost); err != nil {
			return nil, err
		}

		payload, _ := json.Marshal(map[string]any{
			"sessions":     sessions,
			"interactions": interactions,
			"tokens":       tokens,
			"cost_usd":     cost,
		})
		pending = append(pending, &pendingInsight{
			Type:       InsightSessionActivity,
			Scope:      "day:" + day + "|ctx:" + c + "|if:" + iface,
			Title:      "Session activity " + day + " in " + c,
			Payload:    string(payload),
			Evidence:   "[]",
			Confidence: saturate(float64(sessions)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pending, tx.Commit()
}

// upsertInsightTx avoids row churn: an unchanged payload only bumps the
// validation counter, a changed one replaces payload and evidence.
func (s *Store) upsertInsightTx(tx *sql.Tx, ins *pendingInsight) error {
	var id, payload string
	err := tx.QueryRow(`SELECT id, payload FROM global_insights WHERE insight_type = ? AND scope = ?`,
		ins.Type, ins.Scope).Scan(&id, &payload)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO global_insights (id, insight_type, scope, title, payload, evidence, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), ins.Type, ins.Scope, ins.Title, ins.Payload, ins.Evidence, ins.Confidence)
		return err
	case err != nil:
		return err
	case payload == ins.Payload:
		_, err = tx.Exec(`UPDATE global_insights SET times_validated = times_validated + 1, is_active = 1 WHERE id = ?`, id)
		return err
	default:
		_, err = tx.Exec(`
			UPDATE global_insights
			SET payload = ?, evidence = ?, confidence = ?, is_active = 1, updated_at = datetime('now')
			WHERE id = ?`,
			ins.Payload, ins.Evidence, ins.Confidence, id)
		return err
	}
}

// GetInsights returns the derived insights from the last successful refresh.
// Results are cached until the next refresh invalidates them.
func (s *Store) GetInsights(activeOnly bool) ([]*GlobalInsight, error) {
	cacheKey := "insights:all"
	if activeOnly {
		cacheKey = "insights:active"
	}

	if cached, ok := s.insightCache.Get(cacheKey); ok {
		if insights, ok := cached.([]*GlobalInsight); ok {
			return insights, nil
		}
	}

	q := `SELECT ` + queryInsightCols + ` FROM global_insights ORDER BY insight_type, scope`
	if activeOnly {
		q = `SELECT ` + queryInsightCols + ` FROM global_insights WHERE is_active = 1 ORDER BY insight_type, scope`
	}

	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []*GlobalInsight
	for rows.Next() {
		var g GlobalInsight
		var evidence sql.NullString
		if err := rows.Scan(&g.ID, &g.Type, &g.Scope, &g.Title, &g.Payload, &evidence,
			&g.Confidence, &g.Active, &g.TimesValidated, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.Evidence = evidence.String
		insights = append(insights, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.insightCache.Set(cacheKey, insights, int64(len(insights))+1)

	return insights, nil
}

func stringColumn(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, rows.Err()
}
