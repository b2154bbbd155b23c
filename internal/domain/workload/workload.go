// Package workload derives per-worker capacity from open tasks.
//
// Nothing is cached: every call reads the current open tasks and the current
// distribution config.
package workload

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

// DefaultWorkdayMinutes is the daily time budget of one worker.
const DefaultWorkdayMinutes = 480

// DateLayout is the format of attendance dates.
const DateLayout = "2006-01-02"

// TaskReader lists a worker's open tasks.
type TaskReader interface {
	OpenTasksByUser(ctx context.Context, userID string) ([]model.Task, error)
}

// UserReader lists active workers and absences.
type UserReader interface {
	ActiveUsers(ctx context.Context) ([]model.User, error)
	AbsentUserIDs(ctx context.Context, date string) ([]string, error)
}

// ConfigSource returns the current distribution config.
type ConfigSource interface {
	Get() model.DistributionConfig
}

// Balancer computes workload snapshots and eligibility.
type Balancer struct {
	tasks         TaskReader
	users         UserReader
	config        ConfigSource
	workday       int
	excludeAbsent bool
	now           func() time.Time
	log           logger.Logger
}

// Option configures a Balancer.
type Option func(*Balancer)

// WithWorkdayMinutes overrides the daily budget.
func WithWorkdayMinutes(m int) Option {
	return func(b *Balancer) {
		if m > 0 {
			b.workday = m
		}
	}
}

// WithExcludeAbsent drops workers absent today from the eligible set.
func WithExcludeAbsent(v bool) Option {
	return func(b *Balancer) {
		b.excludeAbsent = v
	}
}

// WithClock sets the time source used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(b *Balancer) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger used for degraded reads.
func WithLogger(l logger.Logger) Option {
	return func(b *Balancer) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBalancer creates a Balancer.
func NewBalancer(tasks TaskReader, users UserReader, cfg ConfigSource, opts ...Option) *Balancer {
	b := &Balancer{
		tasks:   tasks,
		users:   users,
		config:  cfg,
		workday: DefaultWorkdayMinutes,
		now:     time.Now,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Score maps utilization to a workload score in [0,1].
func Score(utilization, maxUtilization float64) float64 {
	if maxUtilization <= 0 || utilization >= maxUtilization {
		return 0
	}
	s := 1 - utilization/maxUtilization
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Snapshot computes a snapshot from open tasks against a workday budget.
func Snapshot(userID string, open []model.Task, workday int) model.WorkloadSnapshot {
	snap := model.WorkloadSnapshot{UserID: userID}
	for _, t := range open {
		if !t.Status.Open() {
			continue
		}
		snap.TaskCount++
		if t.EstimatedMinutes > 0 {
			snap.EstimatedMinutesRemaining += t.EstimatedMinutes
		}
	}
	if workday > 0 {
		snap.Utilization = min(1, float64(snap.EstimatedMinutesRemaining)/float64(workday))
	}
	return snap
}

func (b *Balancer) load(ctx context.Context, userID string) (model.WorkloadSnapshot, error) {
	open, err := b.tasks.OpenTasksByUser(ctx, userID)
	if err != nil {
		return model.WorkloadSnapshot{UserID: userID}, fmt.Errorf("open tasks of %s: %w", userID, err)
	}
	return Snapshot(userID, open, b.workday), nil
}

// GetWorkload returns the worker's snapshot. A read failure degrades to an
// empty snapshot.
func (b *Balancer) GetWorkload(ctx context.Context, userID string) model.WorkloadSnapshot {
	snap, err := b.load(ctx, userID)
	if err != nil {
		b.log.Warn(ctx, "workload read failed, using empty snapshot",
			logger.String("user_id", userID), logger.Error(err))
	}
	return snap
}

// GetWorkloadScore returns the worker's workload score under the current config.
func (b *Balancer) GetWorkloadScore(ctx context.Context, userID string) float64 {
	return Score(b.GetWorkload(ctx, userID).Utilization, b.config.Get().MaxUtilization)
}

// IsEligible re-checks one worker. Unlike GetWorkload, read failures are
// returned so a commit can be aborted.
func (b *Balancer) IsEligible(ctx context.Context, userID string) (bool, error) {
	snap, err := b.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return snap.Utilization < b.config.Get().MaxUtilization, nil
}

// EligibleSnapshots returns the snapshots of every eligible worker, sorted
// by user id.
func (b *Balancer) EligibleSnapshots(ctx context.Context) ([]model.WorkloadSnapshot, error) {
	ids, err := b.candidateIDs(ctx)
	if err != nil {
		return nil, err
	}
	maxUtil := b.config.Get().MaxUtilization
	out := make([]model.WorkloadSnapshot, 0, len(ids))
	for _, id := range ids {
		snap := b.GetWorkload(ctx, id)
		if snap.Utilization < maxUtil {
			out = append(out, snap)
		}
	}
	return out, nil
}

// GetEligibleUserIDs returns active workers below the utilization cap.
func (b *Balancer) GetEligibleUserIDs(ctx context.Context) ([]string, error) {
	snaps, err := b.EligibleSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.UserID
	}
	return ids, nil
}

// GetTasksToReassign returns the open tasks owned by userID.
func (b *Balancer) GetTasksToReassign(ctx context.Context, userID string) ([]model.Task, error) {
	open, err := b.tasks.OpenTasksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open tasks of %s: %w", userID, err)
	}
	return open, nil
}

// GetAllWorkloads returns a snapshot for every active worker.
func (b *Balancer) GetAllWorkloads(ctx context.Context) ([]model.WorkloadSnapshot, error) {
	users, err := b.users.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	out := make([]model.WorkloadSnapshot, 0, len(users))
	for _, u := range users {
		out = append(out, b.GetWorkload(ctx, u.ID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Today returns the current attendance date.
func (b *Balancer) Today() string {
	return b.now().Format(DateLayout)
}

func (b *Balancer) candidateIDs(ctx context.Context) ([]string, error) {
	users, err := b.users.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	absent := map[string]struct{}{}
	if b.excludeAbsent {
		ids, err := b.users.AbsentUserIDs(ctx, b.Today())
		if err != nil {
			b.log.Warn(ctx, "absence read failed, not excluding absent workers", logger.Error(err))
		}
		for _, id := range ids {
			absent[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		if !u.Active {
			continue
		}
		if _, skip := absent[u.ID]; skip {
			continue
		}
		out = append(out, u.ID)
	}
	sort.Strings(out)
	return out, nil
}
