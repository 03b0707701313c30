package neuralmem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// queueBridgeCheck hands a freshly indexed pattern to the bridge worker.
// Best effort: when the queue is full the check runs inline, and either way
// a failure is logged, never propagated to the triggering upsert.
func (s *Store) queueBridgeCheck(patternID int64) {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.bridgeWG.Add(1)
	s.closeMu.Unlock()

	select {
	case s.bridgeCh <- patternID:
	default:
		s.runBridgeCheck(patternID)
	}
}

func (s *Store) bridgeWorker() {
	defer s.workerWG.Done()
	for id := range s.bridgeCh {
		s.runBridgeCheck(id)
	}
}

func (s *Store) runBridgeCheck(patternID int64) {
	defer s.bridgeWG.Done()
	if err := s.DiscoverBridges(context.Background(), patternID); err != nil {
		s.log.Warn("bridge discovery failed", "pattern_id", patternID, "error", err)
	}
}

// DiscoverBridges looks up the pattern's nearest neighbors in other contexts
// and materializes a directional bridge for every neighbor above the
// configured similarity threshold. Idempotent: re-detecting an existing
// bridge only raises its confidence, never duplicates the row or touches its
// usage counters.
func (s *Store) DiscoverBridges(ctx context.Context, patternID int64) error {
	p, err := s.GetPatternByID(patternID)
	if err != nil {
		return fmt.Errorf("discover bridges %d: %w", patternID, err)
	}
	if p.Embedding == nil {
		return nil
	}

	// over-fetch so self and same-context rows don't crowd out real neighbors
	matches, err := s.index.Query(ctx, p.Embedding, s.cfg.BridgeNeighbors*4+1, "")
	if err != nil {
		return fmt.Errorf("discover bridges %d: %w", patternID, err)
	}

	neighbors := 0
	for _, m := range matches {
		if neighbors >= s.cfg.BridgeNeighbors {
			break
		}
		if m.PatternID == patternID {
			continue
		}

		neighbor, err := s.GetPatternByID(m.PatternID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("discover bridges %d: %w", patternID, err)
		}
		if neighbor.Context == p.Context {
			continue
		}
		neighbors++

		if m.Similarity <= s.cfg.BridgeThreshold {
			continue
		}

		created, err := s.upsertBridge(ctx, p.Context, neighbor.Context, patternID, m.Similarity)
		if err != nil {
			return fmt.Errorf("discover bridges %d: %w", patternID, err)
		}
		if created {
			// near-duplicates across contexts are alternatives of each other
			if err := s.upsertRelationship(ctx, patternID, neighbor.ID, RelationAlternativeTo, m.Similarity); err != nil {
				return fmt.Errorf("discover bridges %d: %w", patternID, err)
			}
			s.appendEvent(nil, nil, &patternID, "bridge_discovered",
				fmt.Sprintf(`{"source":%q,"target":%q,"similarity":%.4f}`, p.Context, neighbor.Context, m.Similarity))
		}
	}

	return nil
}

// upsertBridge reports whether a new bridge row was created. An existing
// bridge keeps its counters and only gains confidence when the newly
// observed similarity is higher.
func (s *Store) upsertBridge(ctx context.Context, source, target string, patternID int64, similarity float64) (bool, error) {
	created := false
	err := s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var id int64
		var confidence float64
		err = tx.QueryRowContext(ctx, queryGetBridge, source, target, patternID).Scan(&id, &confidence)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, queryInsertBridge, source, target, patternID, similarity); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if similarity > confidence {
				if _, err := tx.ExecContext(ctx, queryRaiseBridge, similarity, id); err != nil {
					return err
				}
			}
		}

		return tx.Commit()
	})

	return created, err
}

// upsertRelationship stores a co-observation between two patterns. The pair
// is normalized so (a,b) and (b,a) land on the same row; repeat observations
// raise strength by the configured step, capped at 1.
func (s *Store) upsertRelationship(ctx context.Context, a, b int64, relation RelationshipType, strength float64) error {
	if a > b {
		a, b = b, a
	}
	if strength > 1 {
		strength = 1
	}

	return s.withRetry(func() error {
		_, err := s.db.ExecContext(ctx, queryUpsertRelationship, a, b, relation, strength, s.cfg.RelationshipStep)
		return err
	})
}

func (s *Store) upsertRelationshipTx(tx *sql.Tx, a, b int64, relation RelationshipType, strength float64) error {
	if a > b {
		a, b = b, a
	}
	if strength > 1 {
		strength = 1
	}

	_, err := tx.Exec(queryUpsertRelationship, a, b, relation, strength, s.cfg.RelationshipStep)
	return err
}

// GetBridges returns all bridges touching a context, strongest first.
func (s *Store) GetBridges(contextName string) ([]*ContextBridge, error) {
	rows, err := s.db.Query(queryGetBridges, contextName, contextName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bridges []*ContextBridge
	for rows.Next() {
		var b ContextBridge
		if err := rows.Scan(&b.ID, &b.SourceContext, &b.TargetContext, &b.PatternID,
			&b.Confidence, &b.UsageCount, &b.SuccessCount, &b.CreatedAt); err != nil {
			return nil, err
		}
		bridges = append(bridges, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bridges, nil
}

// GetRelationships returns every relationship involving the pattern.
func (s *Store) GetRelationships(patternID int64) ([]*PatternRelationship, error) {
	rows, err := s.db.Query(queryGetRelationships, patternID, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*PatternRelationship
	for rows.Next() {
		var r PatternRelationship
		if err := rows.Scan(&r.ID, &r.PatternA, &r.PatternB, &r.Type,
			&r.Strength, &r.EvidenceCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		rels = append(rels, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rels, nil
}
