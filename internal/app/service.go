// Package service is the distribution orchestrator. It turns events into
// tasks, commits automatic assignments, runs the manager approval flow,
// reassigns work away from unavailable workers and feeds completions back
// into skill learning.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/autodist/internal/adapters/mq/bus"
	"github.com/okian/autodist/internal/domain/assignment"
	"github.com/okian/autodist/internal/domain/distconfig"
	"github.com/okian/autodist/internal/domain/generator"
	"github.com/okian/autodist/internal/domain/history"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/internal/domain/workload"
	"github.com/okian/autodist/pkg/keylock"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Result reasons.
const (
	ReasonNoAssignee      = "no_assignee"
	ReasonPendingApproval = "pending_approval"
)

// TaskSource tags tasks created by the engine.
const TaskSource = "ai_distribution"

// DefaultMaxRetries is how many further candidates an automatic assignment
// tries after the chosen worker fails the eligibility re-check.
const DefaultMaxRetries = 3

// ProcessResult reports what happened to one task definition.
type ProcessResult struct {
	Definition model.TaskDefinition `json:"task_definition"`
	Created    bool                 `json:"created"`
	Reason     string               `json:"reason,omitempty"`
	TaskID     string               `json:"task_id,omitempty"`
	ApprovalID string               `json:"approval_id,omitempty"`
	AssignedTo string               `json:"assigned_to,omitempty"`
	Score      float64              `json:"score,omitempty"`
	AutoAssign bool                 `json:"auto_assign"`
}

// Service orchestrates the distribution pipeline.
type Service struct {
	mu sync.Mutex

	store    Store
	config   *distconfig.Provider
	balancer *workload.Balancer
	learner  *history.Learner
	engine   *assignment.Engine
	locks    *keylock.Locker

	bus   *bus.Bus
	subID bus.SubscriptionID

	workdayMinutes int
	excludeAbsent  bool
	managerRoles   []string
	maxRetries     int
	seedOnStart    bool
	now            func() time.Time

	started bool

	logger  logger.Logger
	metrics *metrics.Manager
}

// New wires the domain components over store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		workdayMinutes: workload.DefaultWorkdayMinutes,
		managerRoles:   []string{"admin", "owner"},
		maxRetries:     DefaultMaxRetries,
		seedOnStart:    true,
		now:            time.Now,
		locks:          keylock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.config == nil {
		s.config = distconfig.New(
			distconfig.WithStore(store),
			distconfig.WithLogger(s.logger),
			distconfig.WithMetrics(s.metrics),
		)
	}
	s.balancer = workload.NewBalancer(store, store, s.config,
		workload.WithWorkdayMinutes(s.workdayMinutes),
		workload.WithExcludeAbsent(s.excludeAbsent),
		workload.WithClock(s.now),
		workload.WithLogger(s.logger),
	)
	s.learner = history.NewLearner(store,
		history.WithLogger(s.logger),
		history.WithMetrics(s.metrics),
	)
	s.engine = assignment.NewEngine(s.balancer, s.learner, s.config,
		assignment.WithLogger(s.logger),
		assignment.WithMetrics(s.metrics),
	)
	return s
}

// Config exposes the hot-reloadable distribution config.
func (s *Service) Config() *distconfig.Provider { return s.config }

// Start loads the persisted config, seeds skill rows for active users and
// subscribes to the bus when one is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting distribution service...")

	if err := s.config.Load(ctx); err != nil {
		return err
	}
	if s.seedOnStart {
		s.seedSkills(ctx)
	}
	if s.bus != nil {
		id, err := s.bus.SubscribeToAll(s.handleEvent)
		if err != nil {
			return fmt.Errorf("subscribe to bus: %w", err)
		}
		s.subID = id
	}

	s.started = true
	cfg := s.config.Get()
	s.logger.Info(ctx, "distribution service started",
		logger.Float64("weight_skill", cfg.WeightSkill),
		logger.Float64("weight_workload", cfg.WeightWorkload),
		logger.Float64("max_utilization", cfg.MaxUtilization),
		logger.Float64("auto_assign_threshold", cfg.AutoAssignThreshold),
		logger.Int("workday_minutes", s.workdayMinutes),
		logger.Bool("exclude_absent", s.excludeAbsent),
	)
	return nil
}

// Stop detaches from the bus. The store is owned by the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if s.bus != nil && s.subID != "" {
		s.bus.Unsubscribe(s.subID)
		s.subID = ""
	}
	s.started = false
	s.logger.Info(context.Background(), "distribution service stopped")
}

// Started reports whether Start has completed.
func (s *Service) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Service) seedSkills(ctx context.Context) {
	users, err := s.store.ActiveUsers(ctx)
	if err != nil {
		s.logger.Warn(ctx, "skill seeding skipped", logger.Error(err))
		return
	}
	for _, u := range users {
		if err := s.learner.EnsureWorker(ctx, u.ID); err != nil {
			s.logger.Warn(ctx, "skill seeding failed",
				logger.String("user_id", u.ID), logger.Error(err))
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, ev model.Event) error {
	_, err := s.ProcessEvent(ctx, ev)
	return err
}

// ProcessEvent generates the event's task definitions and processes each in
// order. A failure on one definition does not stop the others; failures are
// joined into the returned error.
func (s *Service) ProcessEvent(ctx context.Context, ev model.Event) ([]ProcessResult, error) {
	defs := generator.Generate(ev)
	results := make([]ProcessResult, 0, len(defs))
	var errs []error
	for _, def := range defs {
		s.metrics.RecordTaskGenerated(string(def.Kind))
		res, err := s.ProcessGeneratedTask(ctx, def)
		if err != nil {
			s.logger.Error(ctx, "task definition failed",
				logger.String("event_id", ev.ID),
				logger.String("event_type", string(ev.Type)),
				logger.String("task_kind", string(def.Kind)),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ProcessGeneratedTask assigns def automatically when the best candidate is
// confident enough, and otherwise stores a pending approval for a manager.
func (s *Service) ProcessGeneratedTask(ctx context.Context, def model.TaskDefinition) (ProcessResult, error) {
	start := s.now()
	defer func() {
		s.metrics.RecordDecisionLatency(float64(s.now().Sub(start).Microseconds()) / 1000)
	}()

	res := ProcessResult{Definition: def}
	cand, err := s.engine.SelectAssignee(ctx, def)
	if err != nil {
		s.metrics.RecordError("orchestrator", "select")
		return res, fmt.Errorf("select assignee for %s: %w", def.Kind, err)
	}

	exclude := make(map[string]struct{})
	for attempt := 0; cand != nil; attempt++ {
		if !cand.AutoAssign || def.RequiresApproval {
			return s.requestApproval(ctx, def, *cand)
		}
		task, committed, err := s.commitAuto(ctx, def, *cand)
		if err != nil {
			return res, err
		}
		if committed {
			res.Created = true
			res.TaskID = task.ID
			res.AssignedTo = cand.UserID
			res.Score = cand.Score
			res.AutoAssign = true
			return res, nil
		}
		if attempt >= s.maxRetries {
			break
		}
		exclude[cand.UserID] = struct{}{}
		cand, err = s.engine.SelectAssigneeExcluding(ctx, def, exclude)
		if err != nil {
			s.metrics.RecordError("orchestrator", "select")
			return res, fmt.Errorf("select assignee for %s: %w", def.Kind, err)
		}
	}

	s.metrics.RecordNoAssignee()
	s.logger.Warn(ctx, "no eligible assignee",
		logger.String("task_kind", string(def.Kind)),
		logger.String("event_type", string(def.SourceReference.EventType)))
	res.Reason = ReasonNoAssignee
	return res, nil
}

// commitAuto re-checks the candidate under its worker lock and, when still
// eligible, creates the task with its log entry. committed is false when the
// worker filled up since scoring.
func (s *Service) commitAuto(ctx context.Context, def model.TaskDefinition, cand assignment.Candidate) (model.Task, bool, error) {
	unlock := s.locks.Lock(cand.UserID)
	defer unlock()

	ok, err := s.balancer.IsEligible(ctx, cand.UserID)
	if err != nil {
		return model.Task{}, false, fmt.Errorf("re-check %s: %w", cand.UserID, err)
	}
	if !ok {
		s.logger.Debug(ctx, "candidate no longer eligible",
			logger.String("user_id", cand.UserID),
			logger.String("task_kind", string(def.Kind)))
		return model.Task{}, false, nil
	}

	task, err := s.store.CreateAssignedTask(ctx, s.taskFrom(def, cand.UserID, ""),
		model.DistributionLogEntry{AssignedTo: cand.UserID, Method: model.MethodAuto, CreatedAt: s.now()})
	if err != nil {
		s.metrics.RecordError("orchestrator", "persist")
		return model.Task{}, false, fmt.Errorf("create %s task for %s (event %s): %w",
			def.Kind, cand.UserID, def.SourceReference.EventType, err)
	}
	s.metrics.RecordAssignment(string(model.MethodAuto))
	s.logger.Info(ctx, "task auto-assigned",
		logger.String("task_id", task.ID),
		logger.String("user_id", cand.UserID),
		logger.String("task_kind", string(def.Kind)),
		logger.Float64("score", cand.Score))
	s.notifyAssignee(ctx, task)
	return task, true, nil
}

func (s *Service) requestApproval(ctx context.Context, def model.TaskDefinition, cand assignment.Candidate) (ProcessResult, error) {
	res := ProcessResult{Definition: def, Reason: ReasonPendingApproval, AssignedTo: cand.UserID, Score: cand.Score}
	a, err := s.store.CreateApproval(ctx, model.AssignmentApproval{
		TaskDefinition:  def,
		SuggestedUserID: cand.UserID,
		SuggestedScore:  cand.Score,
		CreatedAt:       s.now(),
	})
	if err != nil {
		s.metrics.RecordError("orchestrator", "persist")
		return res, fmt.Errorf("store approval for %s (event %s): %w",
			def.Kind, def.SourceReference.EventType, err)
	}
	res.ApprovalID = a.ID
	s.metrics.RecordApproval(string(model.ApprovalPending))
	s.logger.Info(ctx, "approval requested",
		logger.String("approval_id", a.ID),
		logger.String("suggested_user_id", cand.UserID),
		logger.String("task_kind", string(def.Kind)),
		logger.Float64("score", cand.Score),
		logger.Bool("requires_approval", def.RequiresApproval))
	s.notifyApprovalNeeded(ctx, a)
	return res, nil
}

func (s *Service) taskFrom(def model.TaskDefinition, userID, createdBy string) model.Task {
	minutes := def.EstimatedMinutes
	if minutes <= 0 {
		minutes = model.DefaultEstimatedMinutes
	}
	priority := def.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	return model.Task{
		Title:            def.DisplayTitle(),
		Description:      def.Title,
		AssignedTo:       userID,
		CreatedBy:        createdBy,
		Priority:         priority,
		Status:           model.TaskPending,
		Category:         def.Kind,
		Source:           TaskSource,
		SourceReference:  def.SourceReference,
		EstimatedMinutes: minutes,
		CreatedAt:        s.now(),
	}
}
