package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/autodist/internal/adapters/repository"
	"github.com/okian/autodist/internal/domain/assignment"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

// Reassignment is one task moved to a new worker.
type Reassignment struct {
	TaskID    string `json:"task_id"`
	NewUserID string `json:"new_user_id"`
	Title     string `json:"title"`
}

// ReassignResult summarises moving a worker's open tasks.
type ReassignResult struct {
	FromUserID string         `json:"from_user_id"`
	Reassigned []Reassignment `json:"reassigned"`
	Skipped    int            `json:"skipped"`
}

// ReassignTasksFromUser moves every open task of fromUserID to the best
// eligible other worker. Candidates are ranked again for each task so earlier
// moves count against later ones. Tasks nobody can take stay put and are
// counted as skipped.
func (s *Service) ReassignTasksFromUser(ctx context.Context, fromUserID string) (ReassignResult, error) {
	return s.reassignFrom(ctx, fromUserID, map[string]struct{}{fromUserID: {}})
}

// reassignFrom moves fromUserID's open tasks to workers outside exclude.
// exclude must contain fromUserID.
func (s *Service) reassignFrom(ctx context.Context, fromUserID string, exclude map[string]struct{}) (ReassignResult, error) {
	res := ReassignResult{FromUserID: fromUserID, Reassigned: []Reassignment{}}
	open, err := s.balancer.GetTasksToReassign(ctx, fromUserID)
	if err != nil {
		return res, fmt.Errorf("reassign from %s: %w", fromUserID, err)
	}
	if len(open) == 0 {
		return res, nil
	}

	var errs []error
	for _, task := range open {
		moved, err := s.reassignOne(ctx, task, fromUserID, exclude)
		if err != nil {
			s.logger.Error(ctx, "reassignment failed",
				logger.String("task_id", task.ID),
				logger.String("task_kind", string(task.Category)),
				logger.String("from_user_id", fromUserID),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		if moved != "" {
			res.Reassigned = append(res.Reassigned, Reassignment{TaskID: task.ID, NewUserID: moved, Title: task.Title})
		}
	}
	res.Skipped = len(open) - len(res.Reassigned)

	s.metrics.RecordReassignSkipped(res.Skipped)
	s.logger.Info(ctx, "reassignment finished",
		logger.String("from_user_id", fromUserID),
		logger.Int("reassigned", len(res.Reassigned)),
		logger.Int("skipped", res.Skipped))
	if len(res.Reassigned) > 0 {
		s.notifyReassignSummary(ctx, fromUserID, len(res.Reassigned))
	}
	return res, errors.Join(errs...)
}

// reassignOne returns the new assignee, or "" when the task was skipped.
func (s *Service) reassignOne(ctx context.Context, task model.Task, fromUserID string, exclude map[string]struct{}) (string, error) {
	ranked, err := s.engine.RankEligible(ctx, task.Definition(), exclude)
	if err != nil {
		return "", err
	}
	for i, cand := range ranked {
		if i > s.maxRetries {
			break
		}
		ok, err := s.commitReassign(ctx, task, fromUserID, cand)
		if errors.Is(err, repository.ErrConflict) {
			// Closed or moved by someone else in the meantime.
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if ok {
			return cand.UserID, nil
		}
	}
	return "", nil
}

func (s *Service) commitReassign(ctx context.Context, task model.Task, fromUserID string, cand assignment.Candidate) (bool, error) {
	unlock := s.locks.Lock(cand.UserID)
	defer unlock()

	ok, err := s.balancer.IsEligible(ctx, cand.UserID)
	if err != nil || !ok {
		return false, err
	}
	err = s.store.ReassignTask(ctx, task.ID, fromUserID, cand.UserID,
		model.DistributionLogEntry{Method: model.MethodReassign, CreatedAt: s.now()})
	if err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			s.metrics.RecordError("orchestrator", "persist")
		}
		return false, fmt.Errorf("move task %s to %s: %w", task.ID, cand.UserID, err)
	}
	s.metrics.RecordAssignment(string(model.MethodReassign))
	s.logger.Info(ctx, "task reassigned",
		logger.String("task_id", task.ID),
		logger.String("from_user_id", fromUserID),
		logger.String("user_id", cand.UserID),
		logger.Float64("score", cand.Score))
	s.notifyReassigned(ctx, task, cand.UserID)
	return true, nil
}

// ReassignAbsent reassigns the open tasks of every active worker marked
// absent on date. An empty date means today. No absent worker receives
// another absentee's tasks.
func (s *Service) ReassignAbsent(ctx context.Context, date string) ([]ReassignResult, error) {
	if date == "" {
		date = s.balancer.Today()
	}
	ids, err := s.store.AbsentUserIDs(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("absent users on %s: %w", date, err)
	}
	absent := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		absent[id] = struct{}{}
	}
	out := make([]ReassignResult, 0, len(ids))
	var errs []error
	for _, id := range ids {
		res, err := s.reassignFrom(ctx, id, absent)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// AbsentToday lists the active workers marked absent today.
func (s *Service) AbsentToday(ctx context.Context) ([]string, error) {
	ids, err := s.store.AbsentUserIDs(ctx, s.balancer.Today())
	if err != nil {
		return nil, fmt.Errorf("absent users: %w", err)
	}
	return ids, nil
}
