package store

import "database/sql"

// PhaseEvent is one fired state machine transition within a session.
type PhaseEvent struct {
	ID        int64   `json:"id"`
	SessionID string  `json:"sessionId"`
	Seq       int     `json:"seq"`
	FromState string  `json:"from"`
	ToState   string  `json:"to"`
	Phase     string  `json:"phase"`
	Angle     float64 `json:"angle"`
	Reps      int     `json:"reps"`
	AtMs      int64   `json:"atMs"`
}

// EventRepository stores phase events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the phase event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Append inserts e and sets its ID.
func (r *EventRepository) Append(e *PhaseEvent) error {
	result, err := r.db.Exec(
		`INSERT INTO phase_events (session_id, seq, from_state, to_state, phase, angle, reps, at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Seq, e.FromState, e.ToState, e.Phase, e.Angle, e.Reps, e.AtMs,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession returns a session's events in sequence order.
func (r *EventRepository) ListBySession(sessionID string) ([]PhaseEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, seq, from_state, to_state, phase, angle, reps, at_ms
		 FROM phase_events
		 WHERE session_id = ?
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PhaseEvent
	for rows.Next() {
		var e PhaseEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.FromState, &e.ToState,
			&e.Phase, &e.Angle, &e.Reps, &e.AtMs); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
