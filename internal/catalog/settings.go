package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/irhub/irhub/internal/cipher"
)

const (
	keyMqttHost     = "mqtt_host"
	keyMqttPort     = "mqtt_port"
	keyMqttUsername = "mqtt_username"
	keyMqttPassCT   = "mqtt_password_ciphertext"
	keyMqttPassNC   = "mqtt_password_nonce"
	keyMqttInstance = "mqtt_instance"
)

// GetSetting trims the key and returns its value, or ("", false) if unset.
func (s *Store) GetSetting(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, ErrEmptyKey
	}
	var value string
	err := s.q(tx).QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("catalog: get setting: %w", err)
	}
	return value, true, nil
}

// SetSetting trims the key and upserts its value.
func (s *Store) SetSetting(ctx context.Context, tx *sql.Tx, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.q(tx).ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("catalog: set setting: %w", err)
	}
	return nil
}

// GetRuntimeSettings decrypts the MQTT password (if a ciphertext+nonce pair
// is present) and assembles the broker connection settings.
func (s *Store) GetRuntimeSettings(ctx context.Context, tx *sql.Tx, aead *cipher.AEAD) (RuntimeSettings, error) {
	var out RuntimeSettings

	host, _, err := s.GetSetting(ctx, tx, keyMqttHost)
	if err != nil {
		return RuntimeSettings{}, err
	}
	out.MqttHost = host

	if portStr, ok, err := s.GetSetting(ctx, tx, keyMqttPort); err != nil {
		return RuntimeSettings{}, err
	} else if ok {
		if p, err := strconv.Atoi(portStr); err == nil {
			out.MqttPort = p
		}
	}

	if user, _, err := s.GetSetting(ctx, tx, keyMqttUsername); err != nil {
		return RuntimeSettings{}, err
	} else {
		out.MqttUsername = user
	}

	if inst, _, err := s.GetSetting(ctx, tx, keyMqttInstance); err != nil {
		return RuntimeSettings{}, err
	} else {
		out.MqttInstance = inst
	}

	ciphertext, hasCT, err := s.GetSetting(ctx, tx, keyMqttPassCT)
	if err != nil {
		return RuntimeSettings{}, err
	}
	nonce, hasNC, err := s.GetSetting(ctx, tx, keyMqttPassNC)
	if err != nil {
		return RuntimeSettings{}, err
	}
	if hasCT && hasNC && ciphertext != "" && nonce != "" {
		if aead == nil {
			return RuntimeSettings{}, ErrMasterKeyMissing
		}
		plaintext, err := aead.Decrypt(cipher.Encrypted{CiphertextB64: ciphertext, NonceB64: nonce})
		if err != nil {
			return RuntimeSettings{}, ErrDecryptFailed
		}
		out.MqttPassword = plaintext
	}

	return out, nil
}

// UpdateUISettings writes only the fields the caller supplied. A nonempty
// MqttPassword is encrypted before storage; an empty string clears the
// stored ciphertext+nonce pair.
func (s *Store) UpdateUISettings(ctx context.Context, tx *sql.Tx, aead *cipher.AEAD, in UISettingsUpdate) error {
	write := func(key string, value *string) error {
		if value == nil {
			return nil
		}
		return s.SetSetting(ctx, tx, key, *value)
	}

	if err := write(keyMqttHost, in.MqttHost); err != nil {
		return err
	}
	if in.MqttPort != nil {
		if err := s.SetSetting(ctx, tx, keyMqttPort, strconv.Itoa(*in.MqttPort)); err != nil {
			return err
		}
	}
	if err := write(keyMqttUsername, in.MqttUsername); err != nil {
		return err
	}
	if err := write(keyMqttInstance, in.MqttInstance); err != nil {
		return err
	}

	if in.MqttPassword != nil {
		if *in.MqttPassword == "" {
			if err := s.SetSetting(ctx, tx, keyMqttPassCT, ""); err != nil {
				return err
			}
			if err := s.SetSetting(ctx, tx, keyMqttPassNC, ""); err != nil {
				return err
			}
		} else {
			if aead == nil {
				return ErrMasterKeyMissing
			}
			enc, err := aead.Encrypt(*in.MqttPassword)
			if err != nil {
				return fmt.Errorf("catalog: encrypt mqtt password: %w", err)
			}
			if err := s.SetSetting(ctx, tx, keyMqttPassCT, enc.CiphertextB64); err != nil {
				return err
			}
			if err := s.SetSetting(ctx, tx, keyMqttPassNC, enc.NonceB64); err != nil {
				return err
			}
		}
	}

	for key, value := range map[string]*int{
		"press_takes_default":        in.PressTakesDefault,
		"capture_timeout_ms_default": in.CaptureTimeoutMsDefault,
		"hold_idle_timeout_ms":       in.HoldIdleTimeoutMs,
		"aggregate_round_to_us":      in.AggregateRoundToUs,
	} {
		if value != nil {
			if err := s.SetSetting(ctx, tx, key, strconv.Itoa(*value)); err != nil {
				return err
			}
		}
	}
	if in.AggregateMinMatchRatio != nil {
		if err := s.SetSetting(ctx, tx, "aggregate_min_match_ratio", strconv.FormatFloat(*in.AggregateMinMatchRatio, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if in.HomeassistantEnabled != nil {
		v := "false"
		if *in.HomeassistantEnabled {
			v = "true"
		}
		if err := s.SetSetting(ctx, tx, "homeassistant_enabled", v); err != nil {
			return err
		}
	}

	return nil
}
