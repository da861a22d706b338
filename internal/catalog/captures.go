package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateCapture persists one raw take, used only when debug is on.
func (s *Store) CreateCapture(ctx context.Context, tx *sql.Tx, buttonID, mode string, takeIndex int, raw string) error {
	_, err := s.q(tx).ExecContext(ctx, `
		INSERT INTO captures (button_id, mode, take_index, raw) VALUES (?, ?, ?, ?)
	`, buttonID, mode, takeIndex, raw)
	if err != nil {
		return fmt.Errorf("catalog: create capture: %w", err)
	}
	return nil
}

// ListCaptures returns every capture for a button, ordered by mode then
// take index.
func (s *Store) ListCaptures(ctx context.Context, tx *sql.Tx, buttonID string) ([]Capture, error) {
	rows, err := s.q(tx).QueryContext(ctx, `
		SELECT id, button_id, mode, take_index, raw, created_at
		FROM captures WHERE button_id = ? ORDER BY mode, take_index
	`, buttonID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.ButtonID, &c.Mode, &c.TakeIndex, &c.Raw, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClearAllCaptures purges every capture row. Nothing in this module calls
// it, so capture rows persist across hub restarts.
func (s *Store) ClearAllCaptures(ctx context.Context, tx *sql.Tx) error {
	_, err := s.q(tx).ExecContext(ctx, `DELETE FROM captures`)
	if err != nil {
		return fmt.Errorf("catalog: clear captures: %w", err)
	}
	return nil
}
