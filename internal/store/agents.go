// agents.go — persisted_agents CRUD. Mirrors shared/persistence.py's
// upsert_agent/touch_agent/list_agents: this table is the durable shadow
// of the in-memory Agent Registry, letting /clients-status and the
// sweeper survive a master restart without losing last-known state.
package store

import (
	"context"
	"database/sql"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// AgentsStore persists agent identity and last-seen state.
type AgentsStore struct{ BaseStore }

// NewAgentsStore creates an AgentsStore.
func NewAgentsStore(db *sql.DB) *AgentsStore { return &AgentsStore{NewBaseStore(db)} }

// Upsert inserts or updates an agent's status and last-seen timestamp.
// clientID is left untouched on conflict when empty, matching the
// Python upsert_agent's conditional column list.
func (s *AgentsStore) Upsert(ctx context.Context, agentIP, status string, lastSeen float64, clientID string) error {
	op := "AgentsStore.Upsert"
	var err error
	if clientID != "" {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO persisted_agents(agent_ip, status, last_seen, client_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(agent_ip) DO UPDATE SET
				status=excluded.status,
				last_seen=excluded.last_seen,
				client_id=excluded.client_id
		`, agentIP, status, lastSeen, clientID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO persisted_agents(agent_ip, status, last_seen, client_id)
			VALUES (?, ?, ?, NULL)
			ON CONFLICT(agent_ip) DO UPDATE SET
				status=excluded.status,
				last_seen=excluded.last_seen
		`, agentIP, status, lastSeen)
	}
	if err != nil {
		return apperrors.Wrap(err, op, "upsert persisted agent")
	}
	return nil
}

// Touch refreshes last_seen for an already-registered agent.
func (s *AgentsStore) Touch(ctx context.Context, agentIP string, lastSeen float64) error {
	op := "AgentsStore.Touch"
	if _, err := s.db.ExecContext(ctx,
		`UPDATE persisted_agents SET last_seen=? WHERE agent_ip=?`,
		lastSeen, agentIP); err != nil {
		return apperrors.Wrap(err, op, "touch persisted agent")
	}
	return nil
}

// SetStatus updates only the status column, leaving last_seen untouched.
func (s *AgentsStore) SetStatus(ctx context.Context, agentIP, status string) error {
	op := "AgentsStore.SetStatus"
	if _, err := s.db.ExecContext(ctx,
		`UPDATE persisted_agents SET status=? WHERE agent_ip=?`,
		status, agentIP); err != nil {
		return apperrors.Wrap(err, op, "set persisted agent status")
	}
	return nil
}

// List returns every persisted agent, ordered by IP for stable UI output.
func (s *AgentsStore) List(ctx context.Context) ([]Agent, error) {
	op := "AgentsStore.List"
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_ip, status, last_seen, client_id FROM persisted_agents ORDER BY agent_ip`)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query persisted agents")
	}
	agents, err := scanRows[Agent](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan persisted agents")
	}
	return agents, nil
}
