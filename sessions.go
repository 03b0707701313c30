package neuralmem

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// sessionLock returns the per-session mutex used to serialize appends for a
// single session; appends across sessions proceed in parallel.
func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.sessMu.RLock()
	mu, ok := s.sessLocks[sessionID]
	s.sessMu.RUnlock()

	if ok {
		return mu
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	if mu, ok = s.sessLocks[sessionID]; ok {
		return mu
	}

	mu = &sync.Mutex{}
	s.sessLocks[sessionID] = mu

	return mu
}

// StartSession registers a new work session. The session_id is caller
// supplied and must be unique; a collision returns ErrDuplicateSession so
// the caller can reuse the existing session.
func (s *Store) StartSession(sessionID, contextName, interfaceName, llmModel string) (int64, error) {
	var id int64
	err := s.withRetry(func() error {
		result, err := s.db.Exec(queryInsertSession, sessionID, contextName, interfaceName, llmModel)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateSession
			}
			return err
		}
		id, _ = result.LastInsertId()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("start session %q: %w", sessionID, err)
	}

	return id, nil
}

// AppendInteraction records one prompt/response event. The sequence number
// is assigned inside the session lock and transaction, so each session's
// interactions are exactly {1..n} with no gaps under any concurrency.
func (s *Store) AppendInteraction(ctx context.Context, sessionID string, in InteractionInput) (int64, error) {
	for _, emb := range [][]float32{in.PromptEmbedding, in.ResponseEmbedding} {
		if emb != nil && len(emb) != s.cfg.Dimensions {
			return 0, fmt.Errorf("append interaction %q: %w: got %d, want %d",
				sessionID, ErrDimensionMismatch, len(emb), s.cfg.Dimensions)
		}
	}

	patternsJSON, err := json.Marshal(in.Patterns)
	if err != nil {
		return 0, fmt.Errorf("append interaction %q: %w", sessionID, err)
	}
	newPatternsJSON, err := json.Marshal(in.NewPatterns)
	if err != nil {
		return 0, fmt.Errorf("append interaction %q: %w", sessionID, err)
	}

	var promptBlob, responseBlob []byte
	if in.PromptEmbedding != nil {
		promptBlob, _ = serializeEmbedding(in.PromptEmbedding)
	}
	if in.ResponseEmbedding != nil {
		responseBlob, _ = serializeEmbedding(in.ResponseEmbedding)
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	var interactionID int64
	err = s.withRetry(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var sessionDBID int64
		var state SessionState
		err = tx.QueryRowContext(ctx, querySessionForAppend, sessionID).Scan(&sessionDBID, &state)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if state == SessionCompleted {
			return fmt.Errorf("session is completed")
		}

		var seq int
		if err := tx.QueryRowContext(ctx, queryNextSequence, sessionDBID).Scan(&seq); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, queryInsertInteraction,
			sessionDBID, seq, in.Prompt, in.Response, promptBlob, responseBlob,
			string(patternsJSON), string(newPatternsJSON),
			in.TokensUsed, in.CostUSD, in.LatencyMs, in.WasSuccessful, in.ErrorMessage)
		if err != nil {
			return err
		}
		interactionID, _ = result.LastInsertId()

		if _, err := tx.ExecContext(ctx, queryBumpSessionCounters, in.TokensUsed, in.CostUSD, sessionDBID); err != nil {
			return err
		}

		for _, patternID := range in.NewPatterns {
			pid := patternID
			if err := s.appendEventTx(tx, &sessionDBID, &interactionID, &pid, "pattern_created", ""); err != nil {
				return err
			}
		}

		// patterns consulted together in a successful interaction reinforce
		// each other
		if in.WasSuccessful && len(in.Patterns) >= 2 {
			for i := 0; i < len(in.Patterns); i++ {
				for j := i + 1; j < len(in.Patterns); j++ {
					if err := s.upsertRelationshipTx(tx, in.Patterns[i], in.Patterns[j], RelationEnhances, s.cfg.RelationshipStep); err != nil {
						return err
					}
				}
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("append interaction %q: %w", sessionID, err)
	}

	return interactionID, nil
}

// EndSession transitions the session to completed. Calling it again is a
// no-op that returns the already-completed session.
func (s *Store) EndSession(sessionID string) (*Session, error) {
	err := s.withRetry(func() error {
		_, err := s.db.Exec(queryCompleteSession, sessionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("end session %q: %w", sessionID, err)
	}

	return s.GetSession(sessionID)
}

// PauseSession moves an active session to paused.
func (s *Store) PauseSession(sessionID string) error {
	return s.setSessionState(sessionID, SessionPaused, SessionActive)
}

// ResumeSession moves a paused session back to active.
func (s *Store) ResumeSession(sessionID string) error {
	return s.setSessionState(sessionID, SessionActive, SessionPaused)
}

func (s *Store) setSessionState(sessionID string, to, from SessionState) error {
	err := s.withRetry(func() error {
		result, err := s.db.Exec(querySetSessionState, to, sessionID, from)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set session %q %s: %w", sessionID, to, err)
	}
	return nil
}

func (s *Store) GetSession(sessionID string) (*Session, error) {
	var sess Session
	var endedAt sql.NullTime

	err := s.db.QueryRow(queryGetSession, sessionID).Scan(
		&sess.ID, &sess.SessionID, &sess.Context, &sess.Interface, &sess.LLMModel,
		&sess.InteractionCount, &sess.TotalTokensUsed, &sess.TotalCostUSD,
		&sess.StartedAt, &endedAt, &sess.State)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get session %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", sessionID, err)
	}

	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}

	return &sess, nil
}

// DeleteSession removes a session and cascades to its interactions.
// Learning events are an append-only audit and stay behind.
func (s *Store) DeleteSession(sessionID string) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	err := s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var sessionDBID int64
		err = tx.QueryRow(`SELECT id FROM sessions WHERE session_id = ?`, sessionID).Scan(&sessionDBID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(queryDeleteInteractions, sessionDBID); err != nil {
			return err
		}
		if _, err := tx.Exec(queryDeleteSession, sessionDBID); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("delete session %q: %w", sessionID, err)
	}

	s.sessMu.Lock()
	delete(s.sessLocks, sessionID)
	s.sessMu.Unlock()

	return nil
}

// GetInteractions returns a session's interactions in sequence order.
func (s *Store) GetInteractions(sessionID string) ([]*Interaction, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(queryGetInteractions, sess.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []*Interaction
	for rows.Next() {
		var in Interaction
		var patternsJSON, newPatternsJSON string
		if err := rows.Scan(&in.ID, &in.SessionID, &in.SequenceNum, &in.Prompt, &in.Response,
			&patternsJSON, &newPatternsJSON, &in.TokensUsed, &in.CostUSD, &in.LatencyMs,
			&in.WasSuccessful, &in.ErrorMessage, &in.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(patternsJSON), &in.Patterns)
		json.Unmarshal([]byte(newPatternsJSON), &in.NewPatterns)
		interactions = append(interactions, &in)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return interactions, nil
}
