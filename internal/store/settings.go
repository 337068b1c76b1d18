package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const (
	keyLastExercise = "last_exercise"
	keyLastCamera   = "last_camera"
)

// SettingsRepository stores application settings as key-value pairs.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value for key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Set inserts or replaces the value for key.
func (r *SettingsRepository) Set(key, value string) error {
	return set(r.db, key, value)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func set(db execer, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// LastTarget returns the exercise and camera of the most recently started
// session, or ErrNotFound before the first one.
func (r *SettingsRepository) LastTarget() (string, int, error) {
	exerciseID, err := r.Get(keyLastExercise)
	if err != nil {
		return "", 0, err
	}
	raw, err := r.Get(keyLastCamera)
	if err != nil {
		return "", 0, err
	}
	cameraID, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid %s %q: %w", keyLastCamera, raw, err)
	}
	return exerciseID, cameraID, nil
}

// SetLastTarget records the exercise and camera of a started session.
func (r *SettingsRepository) SetLastTarget(exerciseID string, cameraID int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := set(tx, keyLastExercise, exerciseID); err != nil {
		return err
	}
	if err := set(tx, keyLastCamera, strconv.Itoa(cameraID)); err != nil {
		return err
	}
	return tx.Commit()
}
