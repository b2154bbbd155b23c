package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/autodist/internal/domain/model"
)

const configRowID = 1

// LoadDistributionConfig returns the persisted config; ok is false when none
// was ever saved.
func (s *Store) LoadDistributionConfig(ctx context.Context) (model.DistributionConfig, bool, error) {
	var c model.DistributionConfig
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT weight_skill, weight_workload, max_utilization, auto_assign_threshold
		FROM distribution_config WHERE id = ?`), configRowID).
		Scan(&c.WeightSkill, &c.WeightWorkload, &c.MaxUtilization, &c.AutoAssignThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DistributionConfig{}, false, nil
	}
	if err != nil {
		return model.DistributionConfig{}, false, fmt.Errorf("load distribution config: %w", mapError(err))
	}
	return c, true, nil
}

// SaveDistributionConfig replaces the persisted config.
func (s *Store) SaveDistributionConfig(ctx context.Context, c model.DistributionConfig) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO distribution_config
			(id, weight_skill, weight_workload, max_utilization, auto_assign_threshold, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			weight_skill = excluded.weight_skill,
			weight_workload = excluded.weight_workload,
			max_utilization = excluded.max_utilization,
			auto_assign_threshold = excluded.auto_assign_threshold,
			updated_at = excluded.updated_at`),
		configRowID, c.WeightSkill, c.WeightWorkload, c.MaxUtilization, c.AutoAssignThreshold, s.stamp())
	if err != nil {
		return fmt.Errorf("save distribution config: %w", mapError(err))
	}
	return nil
}
