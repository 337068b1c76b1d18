package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// MaxIntensity is the strongest feedback level. Zero turns a cue off.
const MaxIntensity = 3

// FeedbackRepository stores per-exercise, per-phase cue intensity.
type FeedbackRepository struct {
	db *sql.DB
}

// Feedback returns the feedback settings repository for this store.
func (s *Store) Feedback() *FeedbackRepository {
	return &FeedbackRepository{db: s.db}
}

// Get returns the configured intensity per phase for an exercise. Phases
// without a row are absent from the map.
func (r *FeedbackRepository) Get(exerciseID string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT phase, intensity FROM feedback_settings WHERE exercise_id = ?`,
		exerciseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var phase string
		var intensity int
		if err := rows.Scan(&phase, &intensity); err != nil {
			return nil, err
		}
		out[phase] = intensity
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Intensity returns the intensity for one phase, or ErrNotFound when unset.
func (r *FeedbackRepository) Intensity(exerciseID, phase string) (int, error) {
	var intensity int
	err := r.db.QueryRow(
		`SELECT intensity FROM feedback_settings WHERE exercise_id = ? AND phase = ?`,
		exerciseID, phase,
	).Scan(&intensity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return intensity, err
}

// Replace overwrites every setting of an exercise in one transaction.
func (r *FeedbackRepository) Replace(exerciseID string, settings map[string]int) error {
	for phase, v := range settings {
		if v < 0 || v > MaxIntensity {
			return fmt.Errorf("intensity for %q must be between 0 and %d, got %d", phase, MaxIntensity, v)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM feedback_settings WHERE exercise_id = ?`, exerciseID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO feedback_settings (exercise_id, phase, intensity) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for phase, v := range settings {
		if _, err := stmt.Exec(exerciseID, phase, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}
