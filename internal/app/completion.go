package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/autodist/internal/adapters/repository"
	"github.com/okian/autodist/internal/domain/history"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

// CompletionResult is the learning outcome of one completed task.
type CompletionResult struct {
	TaskID string      `json:"task_id"`
	UserID string      `json:"user_id"`
	Skill  model.Skill `json:"skill"`
	OnTime bool        `json:"on_time"`
	Score  float64     `json:"score"`
}

// CompleteTask closes an open task and feeds the outcome into skill
// learning. An empty userID means the current assignee.
func (s *Service) CompleteTask(ctx context.Context, taskID, userID string, rating *float64) (CompletionResult, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if userID == "" {
		userID = task.AssignedTo
	}
	if task.AssignedTo != userID {
		return CompletionResult{}, fmt.Errorf("complete %s by %s: %w", taskID, userID, ErrAssigneeMismatch)
	}
	err = s.store.CompleteTask(ctx, taskID, s.now(), rating)
	if errors.Is(err, repository.ErrConflict) {
		return CompletionResult{}, fmt.Errorf("complete %s: %w", taskID, ErrTaskNotOpen)
	}
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete %s: %w", taskID, err)
	}
	return s.OnTaskCompleted(ctx, taskID, userID, "")
}

// OnTaskCompleted records a finished task against its assignee's skill. The
// task counts as on time when it has no due date or finished by it; a task
// without a completion time counts as late. An empty kind falls back to the
// task's category.
func (s *Service) OnTaskCompleted(ctx context.Context, taskID, userID string, kind model.TaskKind) (CompletionResult, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if task.AssignedTo != userID {
		return CompletionResult{}, fmt.Errorf("completion of %s by %s: %w", taskID, userID, ErrAssigneeMismatch)
	}
	if kind == "" {
		kind = task.Category
	}
	if kind == "" {
		kind = model.KindPreparation
	}

	outcome := history.Outcome{
		OnTime:  onTime(task),
		Rating:  task.Rating,
		Minutes: workedMinutes(task),
	}
	score, err := s.learner.RecordCompletion(ctx, userID, kind, outcome)
	if err != nil {
		s.metrics.RecordError("orchestrator", "persist")
		return CompletionResult{}, fmt.Errorf("record completion of %s: %w", taskID, err)
	}
	s.logger.Info(ctx, "completion recorded",
		logger.String("task_id", taskID),
		logger.String("user_id", userID),
		logger.String("skill", string(kind.Skill())),
		logger.Bool("on_time", outcome.OnTime),
		logger.Float64("score", score))
	return CompletionResult{
		TaskID: taskID,
		UserID: userID,
		Skill:  kind.Skill(),
		OnTime: outcome.OnTime,
		Score:  score,
	}, nil
}

func (s *Service) loadTask(ctx context.Context, taskID string) (model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Task{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	return task, nil
}

func onTime(t model.Task) bool {
	if t.DueAt == nil {
		return true
	}
	return t.CompletedAt != nil && !t.CompletedAt.After(*t.DueAt)
}

func workedMinutes(t model.Task) int {
	if t.CompletedAt == nil {
		return 0
	}
	start := t.CreatedAt
	if t.StartedAt != nil {
		start = *t.StartedAt
	}
	if d := t.CompletedAt.Sub(start); d > 0 {
		return int(d.Minutes())
	}
	return 0
}
