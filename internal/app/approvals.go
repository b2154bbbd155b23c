package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/autodist/internal/adapters/repository"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

// ApproveResult describes the task created by an approval.
type ApproveResult struct {
	ApprovalID string `json:"approval_id"`
	TaskID     string `json:"task_id"`
	AssignedTo string `json:"assigned_to"`
}

// RejectResult reports how many approvals changed state: 1 or 0.
type RejectResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// ApproveAssignment turns a pending approval into a task assigned to the
// suggested worker, or to overrideUserID when given. The state change, the
// task and its log entry commit together; a second decision on the same
// approval fails with ErrApprovalNotPending.
func (s *Service) ApproveAssignment(ctx context.Context, approvalID, managerID, overrideUserID string) (ApproveResult, error) {
	a, err := s.store.GetApproval(ctx, approvalID)
	if errors.Is(err, repository.ErrNotFound) {
		return ApproveResult{}, fmt.Errorf("approve %s: %w", approvalID, ErrApprovalNotPending)
	}
	if err != nil {
		return ApproveResult{}, fmt.Errorf("approve %s: %w", approvalID, err)
	}
	if a.Status != model.ApprovalPending {
		return ApproveResult{}, fmt.Errorf("approve %s (%s): %w", approvalID, a.Status, ErrApprovalNotPending)
	}

	assignee := a.SuggestedUserID
	if overrideUserID != "" {
		u, err := s.store.GetUser(ctx, overrideUserID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.Active) {
			return ApproveResult{}, fmt.Errorf("approve %s for %s: %w", approvalID, overrideUserID, ErrUnknownUser)
		}
		if err != nil {
			return ApproveResult{}, fmt.Errorf("approve %s: %w", approvalID, err)
		}
		assignee = u.ID
	}

	unlock := s.locks.Lock(assignee)
	task, err := s.store.ApproveAndCreate(ctx, approvalID, managerID,
		s.taskFrom(a.TaskDefinition, assignee, managerID),
		model.DistributionLogEntry{AssignedTo: assignee, Method: model.MethodApproval, CreatedAt: s.now()},
		s.now())
	unlock()
	if errors.Is(err, repository.ErrNotPending) {
		return ApproveResult{}, fmt.Errorf("approve %s: %w", approvalID, ErrApprovalNotPending)
	}
	if err != nil {
		s.metrics.RecordError("orchestrator", "persist")
		return ApproveResult{}, fmt.Errorf("approve %s (%s): %w", approvalID, a.TaskDefinition.Kind, err)
	}

	s.metrics.RecordApproval(string(model.ApprovalApproved))
	s.metrics.RecordAssignment(string(model.MethodApproval))
	s.logger.Info(ctx, "approval granted",
		logger.String("approval_id", approvalID),
		logger.String("manager_id", managerID),
		logger.String("task_id", task.ID),
		logger.String("user_id", assignee),
		logger.Bool("override", overrideUserID != ""))
	s.notifyAssignee(ctx, task)
	return ApproveResult{ApprovalID: approvalID, TaskID: task.ID, AssignedTo: assignee}, nil
}

// RejectApproval closes a pending approval without creating a task.
func (s *Service) RejectApproval(ctx context.Context, approvalID, managerID string) (RejectResult, error) {
	n, err := s.store.RejectApproval(ctx, approvalID, managerID)
	if err != nil {
		s.metrics.RecordError("orchestrator", "persist")
		return RejectResult{}, fmt.Errorf("reject %s: %w", approvalID, err)
	}
	if n == 0 {
		return RejectResult{}, fmt.Errorf("reject %s: %w", approvalID, ErrApprovalNotPending)
	}
	s.metrics.RecordApproval(string(model.ApprovalRejected))
	s.logger.Info(ctx, "approval rejected",
		logger.String("approval_id", approvalID),
		logger.String("manager_id", managerID))
	return RejectResult{RowsAffected: n}, nil
}
