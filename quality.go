package neuralmem

import (
	"math"
)

// scoreFor applies the quality formula:
//
//	success_rate * SuccessWeight + sat(ln(usage+1)) * UsageWeight + sat(bridges) * BridgeWeight
//
// where sat(x) = x / (x + 1). With no recorded outcomes the success rate
// defaults to 0.5. The result is clamped to [0, 1].
func (c Config) scoreFor(usage, success, failure, bridgeContexts int) float64 {
	successRate := 0.5
	if success+failure > 0 {
		successRate = float64(success) / float64(success+failure)
	}

	usageTerm := saturate(math.Log(float64(usage) + 1))
	bridgeTerm := saturate(float64(bridgeContexts))

	score := successRate*c.SuccessWeight + usageTerm*c.UsageWeight + bridgeTerm*c.BridgeWeight

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func saturate(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (x + 1)
}

// recomputeScore reads the pattern's counters and bridge spread, writes a
// fresh quality score, and clears the stale flag. Runs in one transaction so
// a concurrent counter mutation re-marks the score stale rather than being
// absorbed silently.
func (s *Store) recomputeScore(patternID int64) (float64, error) {
	var score float64
	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var usage, success, failure int
		if err := tx.QueryRow(queryScoreInputs, patternID).Scan(&usage, &success, &failure); err != nil {
			return err
		}

		var bridgeContexts int
		if err := tx.QueryRow(queryBridgeSpread, patternID).Scan(&bridgeContexts); err != nil {
			return err
		}

		score = s.cfg.scoreFor(usage, success, failure, bridgeContexts)
		if _, err := tx.Exec(queryWriteScore, score, patternID); err != nil {
			return err
		}

		return tx.Commit()
	})

	return score, err
}

// RecomputeAllDirty sweeps every pattern whose counters changed since the
// last score computation. Returns the number of scores refreshed.
func (s *Store) RecomputeAllDirty() (int, error) {
	rows, err := s.db.Query(queryDirtyIDs)
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

	count := 0
	for _, id := range ids {
		if _, err := s.recomputeScore(id); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}
