package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertAgentInput is the idempotent insert-or-update payload for an agent.
// Icon and ConfigurationURL, when nil, preserve whatever value is already
// stored (COALESCE semantics); every other field is always overwritten.
type UpsertAgentInput struct {
	AgentID          string
	Name             string
	Icon             *string
	Transport        string
	Status           string
	CanSend          bool
	CanLearn         bool
	SwVersion        string
	AgentTopic       string
	ConfigurationURL *string
}

// UpsertAgent inserts a new agent or updates an existing one by agent_id.
func (s *Store) UpsertAgent(ctx context.Context, tx *sql.Tx, in UpsertAgentInput) (Agent, error) {
	_, err := s.q(tx).ExecContext(ctx, `
		INSERT INTO agents (agent_id, name, icon, transport, status, can_send, can_learn, sw_version, agent_topic, configuration_url, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(agent_id) DO UPDATE SET
			name = excluded.name,
			icon = COALESCE(excluded.icon, agents.icon),
			transport = excluded.transport,
			status = excluded.status,
			can_send = excluded.can_send,
			can_learn = excluded.can_learn,
			sw_version = excluded.sw_version,
			agent_topic = excluded.agent_topic,
			configuration_url = COALESCE(excluded.configuration_url, agents.configuration_url),
			last_seen = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
	`, in.AgentID, in.Name, in.Icon, in.Transport, in.Status, in.CanSend, in.CanLearn, in.SwVersion, in.AgentTopic, in.ConfigurationURL)
	if err != nil {
		return Agent{}, fmt.Errorf("catalog: upsert agent: %w", err)
	}
	return s.GetAgent(ctx, tx, in.AgentID)
}

// SetPendingState flips an agent's pairing-pending flag. When pending is
// false, sessionID is forced null regardless of what's passed.
func (s *Store) SetPendingState(ctx context.Context, tx *sql.Tx, agentID string, pending bool, sessionID *string) error {
	if !pending {
		sessionID = nil
	}
	res, err := s.q(tx).ExecContext(ctx, `
		UPDATE agents SET pending = ?, pairing_session_id = ?, updated_at = CURRENT_TIMESTAMP WHERE agent_id = ?
	`, pending, sessionID, agentID)
	if err != nil {
		return fmt.Errorf("catalog: set pending state: %w", err)
	}
	return requireRowsAffected(res, ErrUnknownAgent)
}

// DeletePendingAgents purges every pending agent, optionally restricted to
// one pairing session.
func (s *Store) DeletePendingAgents(ctx context.Context, tx *sql.Tx, sessionID *string) error {
	var err error
	if sessionID != nil {
		_, err = s.q(tx).ExecContext(ctx, `DELETE FROM agents WHERE pending = 1 AND pairing_session_id = ?`, *sessionID)
	} else {
		_, err = s.q(tx).ExecContext(ctx, `DELETE FROM agents WHERE pending = 1`)
	}
	if err != nil {
		return fmt.Errorf("catalog: delete pending agents: %w", err)
	}
	return nil
}

// DeleteAgent removes an agent and returns the row as it was before
// deletion.
func (s *Store) DeleteAgent(ctx context.Context, tx *sql.Tx, agentID string) (Agent, error) {
	prior, err := s.GetAgent(ctx, tx, agentID)
	if err != nil {
		return Agent{}, err
	}
	_, err = s.q(tx).ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		return Agent{}, fmt.Errorf("catalog: delete agent: %w", err)
	}
	return prior, nil
}

// GetAgent fetches an agent by id.
func (s *Store) GetAgent(ctx context.Context, tx *sql.Tx, agentID string) (Agent, error) {
	row := s.q(tx).QueryRowContext(ctx, `
		SELECT agent_id, name, icon, transport, status, can_send, can_learn, sw_version,
		       agent_topic, configuration_url, pending, pairing_session_id, last_seen, created_at, updated_at
		FROM agents WHERE agent_id = ?
	`, agentID)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrUnknownAgent
	}
	return a, err
}

// ListAgents returns every agent, ordered by agent_id.
func (s *Store) ListAgents(ctx context.Context, tx *sql.Tx) ([]Agent, error) {
	rows, err := s.q(tx).QueryContext(ctx, `
		SELECT agent_id, name, icon, transport, status, can_send, can_learn, sw_version,
		       agent_topic, configuration_url, pending, pairing_session_id, last_seen, created_at, updated_at
		FROM agents ORDER BY agent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAgentFields patches a subset of {name, icon, configuration_url},
// merging with existing values (nil fields are left untouched).
func (s *Store) UpdateAgentFields(ctx context.Context, tx *sql.Tx, agentID string, name, icon, configurationURL *string) error {
	res, err := s.q(tx).ExecContext(ctx, `
		UPDATE agents SET
			name = COALESCE(?, name),
			icon = COALESCE(?, icon),
			configuration_url = COALESCE(?, configuration_url),
			updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = ?
	`, name, icon, configurationURL, agentID)
	if err != nil {
		return fmt.Errorf("catalog: update agent fields: %w", err)
	}
	return requireRowsAffected(res, ErrUnknownAgent)
}

func scanAgent(s rowScanner) (Agent, error) {
	var a Agent
	err := s.Scan(&a.AgentID, &a.Name, &a.Icon, &a.Transport, &a.Status, &a.CanSend, &a.CanLearn, &a.SwVersion,
		&a.AgentTopic, &a.ConfigurationURL, &a.Pending, &a.PairingSessionID, &a.LastSeen, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Agent{}, err
	}
	return a, nil
}
