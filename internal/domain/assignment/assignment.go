// Package assignment ranks eligible workers for a task definition.
package assignment

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/internal/domain/workload"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Workloads supplies capacity data.
type Workloads interface {
	EligibleSnapshots(ctx context.Context) ([]model.WorkloadSnapshot, error)
	GetWorkload(ctx context.Context, userID string) model.WorkloadSnapshot
}

// Skills supplies normalized skill scores in [0,1].
type Skills interface {
	SkillScore(ctx context.Context, userID string, skill model.Skill) float64
}

// ConfigSource returns the current distribution config.
type ConfigSource interface {
	Get() model.DistributionConfig
}

// Candidate is one scored worker.
type Candidate struct {
	UserID        string  `json:"user_id"`
	Score         float64 `json:"score"`
	HistoryScore  float64 `json:"history_score"`
	WorkloadScore float64 `json:"workload_score"`
	Utilization   float64 `json:"utilization"`
	AutoAssign    bool    `json:"auto_assign"`
}

// Engine selects assignees.
type Engine struct {
	workloads Workloads
	skills    Skills
	config    ConfigSource
	log       logger.Logger
	metrics   *metrics.Manager
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records the eligible worker count.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine.
func NewEngine(w Workloads, s Skills, cfg ConfigSource, opts ...Option) *Engine {
	e := &Engine{
		workloads: w,
		skills:    s,
		config:    cfg,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SelectAssignee returns the best eligible worker, or nil when none is
// eligible.
func (e *Engine) SelectAssignee(ctx context.Context, def model.TaskDefinition) (*Candidate, error) {
	return e.SelectAssigneeExcluding(ctx, def, nil)
}

// SelectAssigneeExcluding is SelectAssignee ignoring the ids in exclude.
func (e *Engine) SelectAssigneeExcluding(ctx context.Context, def model.TaskDefinition, exclude map[string]struct{}) (*Candidate, error) {
	ranked, err := e.RankEligible(ctx, def, exclude)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	top := ranked[0]
	return &top, nil
}

// RankEligible ranks every eligible worker not in exclude.
func (e *Engine) RankEligible(ctx context.Context, def model.TaskDefinition, exclude map[string]struct{}) ([]Candidate, error) {
	snaps, err := e.workloads.EligibleSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("eligible workers: %w", err)
	}
	kept := snaps[:0:0]
	for _, s := range snaps {
		if _, skip := exclude[s.UserID]; !skip {
			kept = append(kept, s)
		}
	}
	e.metrics.UpdateEligibleWorkers(len(kept))
	return e.rank(ctx, def, kept), nil
}

// GetCandidateScores ranks a caller-supplied set of workers.
func (e *Engine) GetCandidateScores(ctx context.Context, def model.TaskDefinition, candidateIDs []string) []Candidate {
	snaps := make([]model.WorkloadSnapshot, 0, len(candidateIDs))
	seen := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		snaps = append(snaps, e.workloads.GetWorkload(ctx, id))
	}
	return e.rank(ctx, def, snaps)
}

func (e *Engine) rank(ctx context.Context, def model.TaskDefinition, snaps []model.WorkloadSnapshot) []Candidate {
	cfg := e.config.Get()
	skill := def.Skill()
	out := make([]Candidate, 0, len(snaps))
	for _, s := range snaps {
		hist := e.skills.SkillScore(ctx, s.UserID, skill)
		wl := workload.Score(s.Utilization, cfg.MaxUtilization)
		out = append(out, Candidate{
			UserID:        s.UserID,
			Score:         Composite(cfg, hist, wl),
			HistoryScore:  hist,
			WorkloadScore: wl,
			Utilization:   s.Utilization,
		})
	}
	Sort(out)
	for i := range out {
		out[i].AutoAssign = out[i].Score >= cfg.AutoAssignThreshold
	}
	return out
}

// Composite weighs a history score and a workload score.
func Composite(cfg model.DistributionConfig, historyScore, workloadScore float64) float64 {
	return cfg.WeightSkill*historyScore + cfg.WeightWorkload*workloadScore
}

// Sort orders candidates by score descending, then lower utilization, then
// ascending user id.
func Sort(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if c[i].Utilization != c[j].Utilization {
			return c[i].Utilization < c[j].Utilization
		}
		return c[i].UserID < c[j].UserID
	})
}
