package store

import "database/sql"

// AngleSample is one recorded frame of a session's tracked angle.
type AngleSample struct {
	Seq     int     `json:"seq"`
	AtMs    int64   `json:"atMs"`
	Angle   float64 `json:"angle"`
	Visible bool    `json:"visible"`
	Correct bool    `json:"correct"`
	Reps    int     `json:"reps"`
}

// SampleRepository stores per-frame angle samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create inserts samples for a session in a single transaction.
func (r *SampleRepository) Create(sessionID string, samples []AngleSample) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO session_samples (session_id, seq, at_ms, angle, visible, correct, reps)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.Exec(sessionID, smp.Seq, smp.AtMs, smp.Angle, smp.Visible, smp.Correct, smp.Reps); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetBySession retrieves a session's samples in sequence order.
func (r *SampleRepository) GetBySession(sessionID string) ([]AngleSample, error) {
	rows, err := r.db.Query(
		`SELECT seq, at_ms, angle, visible, correct, reps
		 FROM session_samples
		 WHERE session_id = ?
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []AngleSample
	for rows.Next() {
		var smp AngleSample
		if err := rows.Scan(&smp.Seq, &smp.AtMs, &smp.Angle, &smp.Visible, &smp.Correct, &smp.Reps); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteBySession removes all samples for a session.
func (r *SampleRepository) DeleteBySession(sessionID string) error {
	_, err := r.db.Exec(`DELETE FROM session_samples WHERE session_id = ?`, sessionID)
	return err
}
