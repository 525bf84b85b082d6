package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/tracker"
)

// Session is one start-to-stop tracking run.
type Session struct {
	ID             string
	StartedAt      time.Time
	EndedAt        *time.Time
	Source         string
	EARThreshold   float64
	TotalFrames    int
	FramesWithFace int
	Blinks         int
	AvgFPS         float64
	MeanEAR        float64
	StdDevEAR      float64
	GestureCounts  map[gesture.Label]int
}

// SessionRepository provides operations on sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, started_at, ended_at, source, ear_threshold, total_frames,
	frames_with_face, blinks, avg_fps, mean_ear, stddev_ear`

// Create inserts a new, open session.
func (r *SessionRepository) Create(s *Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, source, ear_threshold) VALUES (?, ?, ?, ?)`,
		s.ID, s.StartedAt, s.Source, s.EARThreshold,
	)
	return err
}

// End closes a session and stores its summary and gesture counts.
func (r *SessionRepository) End(id string, endedAt time.Time, sum tracker.Summary) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE sessions SET ended_at = ?, total_frames = ?, frames_with_face = ?, blinks = ?,
		 avg_fps = ?, mean_ear = ?, stddev_ear = ? WHERE id = ?`,
		endedAt, sum.TotalFrames, sum.FramesWithFace, sum.Blinks, sum.AvgFPS, sum.MeanEAR, sum.StdDevEAR, id,
	)
	if err != nil {
		return err
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM session_gestures WHERE session_id = ?`, id); err != nil {
		return err
	}
	for label, count := range sum.GestureCounts {
		if _, err := tx.Exec(
			`INSERT INTO session_gestures (session_id, gesture, count) VALUES (?, ?, ?)`,
			id, string(label), count,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a session with its gesture counts.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.GestureCounts, err = r.gestureCounts(id); err != nil {
		return nil, err
	}
	return s, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Counts are loaded after rows is closed; the pool has a single connection.
	for _, s := range sessions {
		if s.GestureCounts, err = r.gestureCounts(s.ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// Delete removes a session and, by cascade, its records.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *SessionRepository) gestureCounts(id string) (map[gesture.Label]int, error) {
	rows, err := r.db.Query(`SELECT gesture, count FROM session_gestures WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[gesture.Label]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, err
		}
		counts[gesture.Label(label)] = count
	}
	return counts, rows.Err()
}

func scanSession(row scanner) (*Session, error) {
	s := &Session{}
	var ended sql.NullTime
	err := row.Scan(&s.ID, &s.StartedAt, &ended, &s.Source, &s.EARThreshold, &s.TotalFrames,
		&s.FramesWithFace, &s.Blinks, &s.AvgFPS, &s.MeanEAR, &s.StdDevEAR)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return s, nil
}
