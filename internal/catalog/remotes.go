package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateRemote inserts a new remote, or returns the existing one if name
// already exists (insert-or-ignore on name, then read back).
func (s *Store) CreateRemote(ctx context.Context, tx *sql.Tx, name string, icon *string, carrierHz, dutyCycle *int) (Remote, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Remote{}, ErrEmptyName
	}
	q := s.q(tx)

	id := uuid.NewString()
	_, err := q.ExecContext(ctx, `
		INSERT INTO remotes (id, name, icon, carrier_hz, duty_cycle)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, id, name, icon, carrierHz, dutyCycle)
	if err != nil {
		return Remote{}, fmt.Errorf("catalog: create remote: %w", err)
	}

	return s.getRemoteByName(ctx, tx, name)
}

func (s *Store) getRemoteByName(ctx context.Context, tx *sql.Tx, name string) (Remote, error) {
	row := s.q(tx).QueryRowContext(ctx, `
		SELECT id, name, icon, carrier_hz, duty_cycle, assigned_agent_id, created_at, updated_at
		FROM remotes WHERE name = ?
	`, name)
	return scanRemote(row)
}

// GetRemote fetches a remote by id.
func (s *Store) GetRemote(ctx context.Context, tx *sql.Tx, id string) (Remote, error) {
	row := s.q(tx).QueryRowContext(ctx, `
		SELECT id, name, icon, carrier_hz, duty_cycle, assigned_agent_id, created_at, updated_at
		FROM remotes WHERE id = ?
	`, id)
	r, err := scanRemote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Remote{}, ErrUnknownRemote
	}
	return r, err
}

// ListRemotes returns every remote, ordered by name.
func (s *Store) ListRemotes(ctx context.Context, tx *sql.Tx) ([]Remote, error) {
	rows, err := s.q(tx).QueryContext(ctx, `
		SELECT id, name, icon, carrier_hz, duty_cycle, assigned_agent_id, created_at, updated_at
		FROM remotes ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list remotes: %w", err)
	}
	defer rows.Close()

	var out []Remote
	for rows.Next() {
		r, err := scanRemoteRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetAssignedAgent sets or clears (agentID == nil) a remote's routing
// override.
func (s *Store) SetAssignedAgent(ctx context.Context, tx *sql.Tx, remoteID string, agentID *string) error {
	res, err := s.q(tx).ExecContext(ctx, `
		UPDATE remotes SET assigned_agent_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, agentID, remoteID)
	if err != nil {
		return fmt.Errorf("catalog: set assigned agent: %w", err)
	}
	return requireRowsAffected(res, ErrUnknownRemote)
}

// ClearButtons deletes every button on a remote; FK cascade removes their
// signals and captures too.
func (s *Store) ClearButtons(ctx context.Context, tx *sql.Tx, remoteID string) error {
	_, err := s.q(tx).ExecContext(ctx, `DELETE FROM buttons WHERE remote_id = ?`, remoteID)
	if err != nil {
		return fmt.Errorf("catalog: clear buttons: %w", err)
	}
	return nil
}

func requireRowsAffected(res sql.Result, ifZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: rows affected: %w", err)
	}
	if n == 0 {
		return ifZero
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRemote(row *sql.Row) (Remote, error) {
	return scanRemoteGeneric(row)
}

func scanRemoteRows(rows *sql.Rows) (Remote, error) {
	return scanRemoteGeneric(rows)
}

func scanRemoteGeneric(s rowScanner) (Remote, error) {
	var r Remote
	err := s.Scan(&r.ID, &r.Name, &r.Icon, &r.CarrierHz, &r.DutyCycle, &r.AssignedAgentID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Remote{}, err
	}
	return r, nil
}
