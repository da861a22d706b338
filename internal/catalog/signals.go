package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertPressInput carries the fields written by a successful press
// capture.
type UpsertPressInput struct {
	ButtonID     string
	PressInitial string
	PressRepeat  *string
	SampleCount  int
	Quality      float64
}

// UpsertPress inserts a new signals row (hold_* left null) or updates only
// the press fields of an existing one. Requires SampleCount >= 1.
func (s *Store) UpsertPress(ctx context.Context, tx *sql.Tx, in UpsertPressInput) error {
	if in.SampleCount < 1 {
		return fmt.Errorf("catalog: upsert press: sample_count_press must be >= 1")
	}
	_, err := s.q(tx).ExecContext(ctx, `
		INSERT INTO button_signals (button_id, press_initial, press_repeat, sample_count_press, quality_score_press, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(button_id) DO UPDATE SET
			press_initial = excluded.press_initial,
			press_repeat = excluded.press_repeat,
			sample_count_press = excluded.sample_count_press,
			quality_score_press = excluded.quality_score_press,
			updated_at = CURRENT_TIMESTAMP
	`, in.ButtonID, in.PressInitial, in.PressRepeat, in.SampleCount, in.Quality)
	if err != nil {
		return fmt.Errorf("catalog: upsert press: %w", err)
	}
	return nil
}

// UpdateHoldInput carries the fields written by a successful hold capture.
type UpdateHoldInput struct {
	ButtonID    string
	HoldInitial string
	HoldRepeat  string
	HoldGapUs   int
	SampleCount int
	Quality     float64
}

// UpdateHold requires a preexisting signals row (press must precede hold).
func (s *Store) UpdateHold(ctx context.Context, tx *sql.Tx, in UpdateHoldInput) error {
	res, err := s.q(tx).ExecContext(ctx, `
		UPDATE button_signals SET
			hold_initial = ?, hold_repeat = ?, hold_gap_us = ?,
			sample_count_hold = ?, quality_score_hold = ?, updated_at = CURRENT_TIMESTAMP
		WHERE button_id = ?
	`, in.HoldInitial, in.HoldRepeat, in.HoldGapUs, in.SampleCount, in.Quality, in.ButtonID)
	if err != nil {
		return fmt.Errorf("catalog: update hold: %w", err)
	}
	return requireRowsAffected(res, ErrPressMissing)
}

// GetSignals fetches the signals row for a button, if any.
func (s *Store) GetSignals(ctx context.Context, tx *sql.Tx, buttonID string) (ButtonSignals, bool, error) {
	row := s.q(tx).QueryRowContext(ctx, `
		SELECT button_id, press_initial, press_repeat, hold_initial, hold_repeat, hold_gap_us,
		       quality_score_press, quality_score_hold, sample_count_press, sample_count_hold,
		       encoding, protocol, address, command, confidence, updated_at
		FROM button_signals WHERE button_id = ?
	`, buttonID)

	var sig ButtonSignals
	err := row.Scan(&sig.ButtonID, &sig.PressInitial, &sig.PressRepeat, &sig.HoldInitial, &sig.HoldRepeat, &sig.HoldGapUs,
		&sig.QualityScorePress, &sig.QualityScoreHold, &sig.SampleCountPress, &sig.SampleCountHold,
		&sig.Encoding, &sig.Protocol, &sig.Address, &sig.Command, &sig.Confidence, &sig.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ButtonSignals{}, false, nil
	}
	if err != nil {
		return ButtonSignals{}, false, fmt.Errorf("catalog: get signals: %w", err)
	}
	return sig, true, nil
}
