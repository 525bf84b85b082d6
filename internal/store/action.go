package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ayusman/nayana/internal/gesture"
)

// Action binds a gesture label to a plugin action.
type Action struct {
	ID         string
	Gesture    gesture.Label
	PluginName string
	ActionName string
	Config     json.RawMessage
	Enabled    bool
	CreatedAt  time.Time
}

// ActionRepository provides CRUD operations for actions.
type ActionRepository struct {
	db *sql.DB
}

// Actions returns the action repository for this store.
func (s *Store) Actions() *ActionRepository {
	return &ActionRepository{db: s.db}
}

const actionColumns = `id, gesture, plugin_name, action_name, config, enabled, created_at`

// Create inserts a new action into the database.
func (r *ActionRepository) Create(a *Action) error {
	a.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Gesture), a.PluginName, a.ActionName, string(configOrEmpty(a.Config)), a.Enabled, a.CreatedAt,
	)
	return err
}

// GetByID retrieves an action by its ID.
func (r *ActionRepository) GetByID(id string) (*Action, error) {
	a, err := scanAction(r.db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListByGesture returns the enabled actions bound to a gesture, oldest first.
// An unbound gesture yields an empty list.
func (r *ActionRepository) ListByGesture(label gesture.Label) ([]*Action, error) {
	return r.query(
		`SELECT `+actionColumns+` FROM actions WHERE gesture = ? AND enabled = 1 ORDER BY created_at`,
		string(label),
	)
}

// List retrieves all actions from the database.
func (r *ActionRepository) List() ([]*Action, error) {
	return r.query(`SELECT ` + actionColumns + ` FROM actions ORDER BY created_at DESC`)
}

// Update updates an existing action in the database.
func (r *ActionRepository) Update(a *Action) error {
	result, err := r.db.Exec(
		`UPDATE actions SET gesture = ?, plugin_name = ?, action_name = ?, config = ?, enabled = ?
		 WHERE id = ?`,
		string(a.Gesture), a.PluginName, a.ActionName, string(configOrEmpty(a.Config)), a.Enabled, a.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes an action from the database by its ID.
func (r *ActionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM actions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *ActionRepository) query(q string, args ...any) ([]*Action, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (*Action, error) {
	a := &Action{}
	var label, config string
	var enabled int

	if err := row.Scan(&a.ID, &label, &a.PluginName, &a.ActionName, &config, &enabled, &a.CreatedAt); err != nil {
		return nil, err
	}

	a.Gesture = gesture.Label(label)
	a.Config = json.RawMessage(config)
	a.Enabled = enabled != 0
	return a, nil
}

func configOrEmpty(c json.RawMessage) json.RawMessage {
	if len(c) == 0 {
		return json.RawMessage("{}")
	}
	return c
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
