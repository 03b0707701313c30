package neuralmem

import (
	"context"
	"fmt"
)

// DecayConfig controls pruning of patterns that aged out without proving
// useful: older than MaxAge, used at most MaxUsageCount times, and scoring
// below MaxQuality.
type DecayConfig struct {
	MaxAgeDays    int
	MaxUsageCount int
	MaxQuality    float64
}

var DefaultDecayConfig = DecayConfig{
	MaxAgeDays:    90,
	MaxUsageCount: 1,
	MaxQuality:    0.3,
}

// Decay deletes low-value stale patterns along with their vectors, bridges,
// and relationships. Returns the number of patterns removed.
func (s *Store) Decay(ctx context.Context, cfg DecayConfig) (int64, error) {
	if cfg.MaxAgeDays == 0 {
		cfg = DefaultDecayConfig
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id FROM patterns
		WHERE created_at < datetime('now', '-%d days')
		  AND usage_count <= ?
		  AND quality_score < ?
		  AND score_stale = 0`, cfg.MaxAgeDays),
		cfg.MaxUsageCount, cfg.MaxQuality)
	if err != nil {
		return 0, err
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	// the candidate list is a snapshot; the delete repeats the predicate so a
	// pattern used between the scan and the delete is spared
	deleteQ := fmt.Sprintf(`
		DELETE FROM patterns
		WHERE id = ?
		  AND created_at < datetime('now', '-%d days')
		  AND usage_count <= ?
		  AND quality_score < ?
		  AND score_stale = 0`, cfg.MaxAgeDays)

	var removed []int64
	err = s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		removed = removed[:0]
		for _, id := range ids {
			result, err := tx.Exec(deleteQ, id, cfg.MaxUsageCount, cfg.MaxQuality)
			if err != nil {
				return err
			}
			if n, _ := result.RowsAffected(); n == 0 {
				continue
			}
			if _, err := tx.Exec(`DELETE FROM context_bridges WHERE pattern_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM pattern_relationships WHERE pattern_a = ? OR pattern_b = ?`, id, id); err != nil {
				return err
			}
			removed = append(removed, id)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	for _, id := range removed {
		if err := s.index.Remove(ctx, id); err != nil {
			s.log.Warn("remove decayed embedding", "pattern_id", id, "error", err)
		}
	}

	return int64(len(removed)), nil
}
