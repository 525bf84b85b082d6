package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Setting keys.
const (
	SettingEARThreshold = "ear_threshold"
	SettingEnabled      = "enabled"
)

// SettingRepository stores application settings as key-value pairs.
type SettingRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingRepository {
	return &SettingRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetFloat returns the value under key parsed as a float, or def if unset.
func (r *SettingRepository) GetFloat(key string, def float64) (float64, error) {
	raw, err := r.Get(key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}

// SetFloat stores a float value under key.
func (r *SettingRepository) SetFloat(key string, v float64) error {
	return r.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
}
