package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/emberrun/sandbox/internal/domain"
)

// GetPolicy returns projectID's network policy, or an empty (default-deny)
// policy if none has been set.
func (s *PostgresStore) GetPolicy(ctx context.Context, projectID string) (domain.NetworkPolicy, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM network_policies WHERE project_id = $1
	`, projectID).Scan(&data)
	if err == pgx.ErrNoRows {
		return domain.NetworkPolicy{}, nil
	}
	if err != nil {
		return domain.NetworkPolicy{}, fmt.Errorf("get policy: %w", err)
	}

	var policy domain.NetworkPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return domain.NetworkPolicy{}, err
	}
	return policy, nil
}

func (s *PostgresStore) SetPolicy(ctx context.Context, projectID string, policy domain.NetworkPolicy) error {
	if projectID == "" {
		return fmt.Errorf("project id is required")
	}

	data, err := json.Marshal(policy)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO network_policies (project_id, data, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (project_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`, projectID, data)
	if err != nil {
		return fmt.Errorf("set policy: %w", err)
	}
	return nil
}
