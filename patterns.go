package neuralmem

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertPattern creates a pattern or merges content into an existing one
// (default policy: replace). A successful upsert that carries an embedding
// indexes the vector and enqueues a bridge check; bridge failures never
// affect the upsert itself.
func (s *Store) UpsertPattern(ctx context.Context, key string, patternType PatternType, content, patternContext string, embedding []float32) (int64, error) {
	if embedding != nil && len(embedding) != s.cfg.Dimensions {
		return 0, fmt.Errorf("upsert pattern %q: %w: got %d, want %d",
			key, ErrDimensionMismatch, len(embedding), s.cfg.Dimensions)
	}

	var id int64
	err := s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var existingID int64
		var existingContent string
		err = tx.QueryRowContext(ctx, queryGetPatternForUpsert, key).Scan(&existingID, &existingContent)

		switch {
		case err == sql.ErrNoRows:
			var blob any
			if embedding != nil {
				blob, err = serializeEmbedding(embedding)
				if err != nil {
					return err
				}
			}
			result, err := tx.ExecContext(ctx, queryInsertPattern, key, patternType, content, patternContext, blob)
			if err != nil {
				return err
			}
			id, _ = result.LastInsertId()

		case err != nil:
			return err

		default:
			merged := content
			if s.merge != nil {
				merged = s.merge(existingContent, content)
			}
			if _, err := tx.ExecContext(ctx, queryUpdatePattern, patternType, merged, patternContext, existingID); err != nil {
				return err
			}
			if embedding != nil {
				blob, err := serializeEmbedding(embedding)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, queryUpdateEmbedding, blob, existingID); err != nil {
					return err
				}
			}
			id = existingID
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("upsert pattern %q: %w", key, err)
	}

	if embedding != nil {
		if err := s.index.Index(ctx, id, patternContext, embedding); err != nil {
			return 0, fmt.Errorf("upsert pattern %q: index embedding: %w", key, err)
		}
		s.queueBridgeCheck(id)
	}

	return id, nil
}

// GetPattern returns the pattern for a key. A stale quality score is
// recomputed before returning, so the caller never observes a score older
// than the latest counter mutation.
func (s *Store) GetPattern(key string) (*Pattern, error) {
	p, err := s.scanPattern(s.db.QueryRow(queryGetPatternByKey, key))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get pattern %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern %q: %w", key, err)
	}

	if p.scoreStale {
		score, err := s.recomputeScore(p.ID)
		if err != nil {
			return nil, fmt.Errorf("get pattern %q: recompute score: %w", key, err)
		}
		p.QualityScore = score
	}

	return &p.Pattern, nil
}

// GetPatternByID is the id-keyed variant of GetPattern.
func (s *Store) GetPatternByID(id int64) (*Pattern, error) {
	p, err := s.scanPattern(s.db.QueryRow(queryGetPatternByID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get pattern %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern %d: %w", id, err)
	}

	if p.scoreStale {
		score, err := s.recomputeScore(p.ID)
		if err != nil {
			return nil, fmt.Errorf("get pattern %d: recompute score: %w", id, err)
		}
		p.QualityScore = score
	}

	return &p.Pattern, nil
}

// RecordUsage atomically bumps the usage counter and the matching outcome
// counter, marks the score stale, and propagates the outcome to any bridges
// through this pattern.
func (s *Store) RecordUsage(patternID int64, outcome Outcome) error {
	var successInc, failureInc int
	switch outcome {
	case OutcomeSuccess:
		successInc = 1
	case OutcomeFailure:
		failureInc = 1
	default:
		return fmt.Errorf("record usage %d: unknown outcome %q", patternID, outcome)
	}

	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		result, err := tx.Exec(queryRecordUsage, successInc, failureInc, patternID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(queryBumpBridgeCounters, successInc, patternID); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("record usage %d: %w", patternID, err)
	}

	return nil
}

// SearchPatterns is a keyword fallback over pattern keys and content for
// callers without an embedding at hand.
func (s *Store) SearchPatterns(query string, limit int) ([]*Pattern, error) {
	if limit <= 0 {
		limit = 20
	}

	like := "%" + query + "%"
	rows, err := s.db.Query(querySearchPatternsPre+querySearchPatternsSuf, like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*Pattern
	for rows.Next() {
		p, err := s.scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, &p.Pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}

type scannedPattern struct {
	Pattern
	scoreStale bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanPattern(row rowScanner) (*scannedPattern, error) {
	var p scannedPattern
	var blob []byte
	var lastUsed sql.NullTime
	var stale int

	err := row.Scan(&p.ID, &p.Key, &p.Type, &p.Content, &p.Context, &blob,
		&p.QualityScore, &stale, &p.UsageCount, &p.SuccessCount, &p.FailureCount,
		&p.CreatedAt, &lastUsed, &p.LastModified)
	if err != nil {
		return nil, err
	}

	p.Embedding = deserializeEmbedding(blob)
	p.scoreStale = stale != 0
	if lastUsed.Valid {
		t := lastUsed.Time
		p.LastUsed = &t
	}

	return &p, nil
}
