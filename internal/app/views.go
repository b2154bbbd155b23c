package service

import (
	"context"
	"fmt"

	"github.com/okian/autodist/internal/domain/assignment"
	"github.com/okian/autodist/internal/domain/model"
)

// WorkerSkills is one worker's full skill profile.
type WorkerSkills struct {
	UserID   string              `json:"user_id"`
	FullName string              `json:"full_name"`
	Skills   model.SkillScoreSet `json:"skills"`
}

// Stats is the monitoring summary of the engine.
type Stats struct {
	model.DistributionStats
	Started bool                     `json:"started"`
	Config  model.DistributionConfig `json:"config"`
}

// PendingApprovals lists approvals awaiting a decision, newest first.
func (s *Service) PendingApprovals(ctx context.Context) ([]model.AssignmentApproval, error) {
	out, err := s.store.PendingApprovals(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending approvals: %w", err)
	}
	return out, nil
}

// DistributionLog returns the latest assignment decisions.
func (s *Service) DistributionLog(ctx context.Context, limit int) ([]model.DistributionLogEntry, error) {
	out, err := s.store.DistributionLog(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("distribution log: %w", err)
	}
	return out, nil
}

// AllSkills returns the skill profile of every active worker, seeding cold
// start rows for workers seen for the first time.
func (s *Service) AllSkills(ctx context.Context) ([]WorkerSkills, error) {
	users, err := s.store.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
		_ = s.learner.EnsureWorker(ctx, u.ID)
	}
	sets, err := s.learner.AllSkills(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]WorkerSkills, 0, len(users))
	for _, u := range users {
		out = append(out, WorkerSkills{UserID: u.ID, FullName: u.FullName, Skills: sets[u.ID]})
	}
	return out, nil
}

// AllWorkloads returns a workload snapshot for every active worker.
func (s *Service) AllWorkloads(ctx context.Context) ([]model.WorkloadSnapshot, error) {
	return s.balancer.GetAllWorkloads(ctx)
}

// CandidateScores ranks every eligible worker for def without assigning.
func (s *Service) CandidateScores(ctx context.Context, def model.TaskDefinition) ([]assignment.Candidate, error) {
	return s.engine.RankEligible(ctx, def, nil)
}

// DistributionConfig returns the active scoring configuration.
func (s *Service) DistributionConfig() model.DistributionConfig {
	return s.config.Get()
}

// SetDistributionConfig validates, persists and activates cfg.
func (s *Service) SetDistributionConfig(ctx context.Context, cfg model.DistributionConfig) error {
	return s.config.Set(ctx, cfg)
}

// Stats summarises approvals, open tasks and assignments.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return Stats{DistributionStats: st, Started: s.Started(), Config: s.config.Get()}, nil
}
