package neuralmem

import (
	"database/sql"

	"github.com/google/uuid"
)

// appendEvent writes a learning event outside a transaction. The audit trail
// is best effort; a failed write is logged, never surfaced.
func (s *Store) appendEvent(sessionDBID, interactionID, patternID *int64, eventType, details string) {
	_, err := s.db.Exec(queryInsertEvent, uuid.NewString(), sessionDBID, interactionID, patternID, eventType, details)
	if err != nil {
		s.log.Warn("append learning event failed", "event_type", eventType, "error", err)
	}
}

func (s *Store) appendEventTx(tx *sql.Tx, sessionDBID, interactionID, patternID *int64, eventType, details string) error {
	_, err := tx.Exec(queryInsertEvent, uuid.NewString(), sessionDBID, interactionID, patternID, eventType, details)
	return err
}

// GetLearningEvents returns the most recent learning events, optionally
// restricted to one session. Events are append-only; there is no mutation
// or deletion path.
func (s *Store) GetLearningEvents(sessionID string, limit int) ([]*LearningEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if sessionID != "" {
		sess, gerr := s.GetSession(sessionID)
		if gerr != nil {
			return nil, gerr
		}
		rows, err = s.db.Query(`SELECT `+queryEventCols+` FROM learning_events WHERE session_db_id = ? ORDER BY created_at DESC LIMIT ?`, sess.ID, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+queryEventCols+` FROM learning_events ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*LearningEvent
	for rows.Next() {
		var e LearningEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.InteractionID, &e.PatternID,
			&e.EventType, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
