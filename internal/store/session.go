package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// SessionStatus is the lifecycle state of a monitoring session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

// Session is a persisted monitoring session.
type Session struct {
	ID         string          `json:"id"`
	ExerciseID string          `json:"exerciseId"`
	CameraID   int             `json:"cameraId"`
	Status     SessionStatus   `json:"status"`
	Reps       int             `json:"reps"`
	StartedAt  time.Time       `json:"startedAt"`
	EndedAt    *time.Time      `json:"endedAt,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new active session.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	if sess.Status == "" {
		sess.Status = SessionActive
	}
	summary := sess.Summary
	if summary == nil {
		summary = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, exercise_id, camera_id, status, reps, started_at, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ExerciseID, sess.CameraID, string(sess.Status), sess.Reps, sess.StartedAt, string(summary),
	)
	return err
}

const sessionColumns = `id, exercise_id, camera_id, status, reps, started_at, ended_at, summary`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var status, summary string
	var ended sql.NullTime

	if err := row.Scan(&sess.ID, &sess.ExerciseID, &sess.CameraID, &status, &sess.Reps,
		&sess.StartedAt, &ended, &summary); err != nil {
		return nil, err
	}

	sess.Status = SessionStatus(status)
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	sess.Summary = json.RawMessage(summary)
	return sess, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions first. A limit of 0 returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// UpdateReps records the live rep count of an active session.
func (r *SessionRepository) UpdateReps(id string, reps int) error {
	return expectOne(r.db.Exec(`UPDATE sessions SET reps = ? WHERE id = ?`, reps, id))
}

// Finish marks a session finished and stores its final rep count and summary.
func (r *SessionRepository) Finish(id string, reps int, endedAt time.Time, summary json.RawMessage) error {
	if summary == nil {
		summary = json.RawMessage("{}")
	}
	return expectOne(r.db.Exec(
		`UPDATE sessions SET status = ?, reps = ?, ended_at = ?, summary = ? WHERE id = ?`,
		string(SessionFinished), reps, endedAt, string(summary), id,
	))
}

// Delete removes a session and, by cascade, its events and samples.
func (r *SessionRepository) Delete(id string) error {
	return expectOne(r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id))
}

// expectOne maps a zero-row write to ErrNotFound.
func expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
