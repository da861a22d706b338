package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateButton inserts a new button under remoteID, or returns the existing
// one if (remote_id, name) already exists. Fails if the remote is unknown.
func (s *Store) CreateButton(ctx context.Context, tx *sql.Tx, remoteID, name string, icon *string) (Button, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Button{}, ErrEmptyName
	}
	q := s.q(tx)

	if _, err := s.GetRemote(ctx, tx, remoteID); err != nil {
		return Button{}, err
	}

	id := uuid.NewString()
	_, err := q.ExecContext(ctx, `
		INSERT INTO buttons (id, remote_id, name, icon)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(remote_id, name) DO NOTHING
	`, id, remoteID, name, icon)
	if err != nil {
		return Button{}, fmt.Errorf("catalog: create button: %w", err)
	}

	return s.getButtonByName(ctx, tx, remoteID, name)
}

func (s *Store) getButtonByName(ctx context.Context, tx *sql.Tx, remoteID, name string) (Button, error) {
	row := s.q(tx).QueryRowContext(ctx, `
		SELECT b.id, b.remote_id, b.name, b.icon, b.created_at, b.updated_at,
		       EXISTS(SELECT 1 FROM button_signals sig WHERE sig.button_id = b.id) AS has_press,
		       EXISTS(SELECT 1 FROM button_signals sig WHERE sig.button_id = b.id AND sig.hold_initial IS NOT NULL) AS has_hold
		FROM buttons b WHERE b.remote_id = ? AND b.name = ?
	`, remoteID, name)
	return scanButton(row)
}

// GetButton fetches a button by id, with has_press/has_hold projected from
// the joined signals row.
func (s *Store) GetButton(ctx context.Context, tx *sql.Tx, id string) (Button, error) {
	row := s.q(tx).QueryRowContext(ctx, `
		SELECT b.id, b.remote_id, b.name, b.icon, b.created_at, b.updated_at,
		       EXISTS(SELECT 1 FROM button_signals sig WHERE sig.button_id = b.id) AS has_press,
		       EXISTS(SELECT 1 FROM button_signals sig WHERE sig.button_id = b.id AND sig.hold_initial IS NOT NULL) AS has_hold
		FROM buttons b WHERE b.id = ?
	`, id)
	b, err := scanButton(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Button{}, ErrUnknownButton
	}
	return b, err
}

// ListButtons returns every button on a remote, ordered by name, with
// has_press/has_hold flags.
func (s *Store) ListButtons(ctx context.Context, tx *sql.Tx, remoteID string) ([]Button, error) {
	rows, err := s.q(tx).QueryContext(ctx, `
		SELECT b.id, b.remote_id, b.name, b.icon, b.created_at, b.updated_at,
		       EXISTS(SELECT 1 FROM button_signals sig WHERE sig.button_id = b.id) AS has_press,
		       EXISTS(SELECT 1 FROM button_signals sig WHERE sig.button_id = b.id AND sig.hold_initial IS NOT NULL) AS has_hold
		FROM buttons b WHERE b.remote_id = ? ORDER BY b.name
	`, remoteID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list buttons: %w", err)
	}
	defer rows.Close()

	var out []Button
	for rows.Next() {
		b, err := scanButton(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListButtonNames returns every button name on a remote, for auto-naming
// (spec §4.12: scan existing names matching BTN_%04d).
func (s *Store) ListButtonNames(ctx context.Context, tx *sql.Tx, remoteID string) ([]string, error) {
	rows, err := s.q(tx).QueryContext(ctx, `SELECT name FROM buttons WHERE remote_id = ?`, remoteID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list button names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func scanButton(s rowScanner) (Button, error) {
	var b Button
	err := s.Scan(&b.ID, &b.RemoteID, &b.Name, &b.Icon, &b.CreatedAt, &b.UpdatedAt, &b.HasPress, &b.HasHold)
	if err != nil {
		return Button{}, err
	}
	return b, nil
}
