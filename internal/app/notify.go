package service

import (
	"context"
	"fmt"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

// Notification action targets.
const (
	ActionDistribution = "/ai-distribution"
	ActionTasks        = "/tasks"
)

// Notification types.
const (
	NotifyTask     = "task"
	NotifyApproval = "approval"
	NotifyInfo     = "info"
)

// manager returns the id of the user who receives approval and summary
// notifications, or "" when nobody holds a manager role.
func (s *Service) manager(ctx context.Context) string {
	u, err := s.store.FirstActiveUserWithRole(ctx, s.managerRoles)
	if err != nil {
		s.logger.Warn(ctx, "no manager to notify",
			logger.Any("roles", s.managerRoles), logger.Error(err))
		return ""
	}
	return u.ID
}

// notify stores n. Failures are logged and never undo the caller's work.
func (s *Service) notify(ctx context.Context, n model.Notification) {
	if n.UserID == "" {
		return
	}
	n.CreatedAt = s.now()
	if _, err := s.store.CreateNotification(ctx, n); err != nil {
		s.metrics.RecordNotificationFailure()
		s.logger.Warn(ctx, "notification failed",
			logger.String("user_id", n.UserID),
			logger.String("entity_id", n.EntityID),
			logger.Error(err))
	}
}

func (s *Service) notifyAssignee(ctx context.Context, t model.Task) {
	s.notify(ctx, model.Notification{
		UserID:     t.AssignedTo,
		Title:      "New task assigned",
		Message:    t.Title,
		Type:       NotifyTask,
		EntityType: "task",
		EntityID:   t.ID,
		ActionURL:  ActionTasks,
	})
}

func (s *Service) notifyApprovalNeeded(ctx context.Context, a model.AssignmentApproval) {
	s.notify(ctx, model.Notification{
		UserID: s.manager(ctx),
		Title:  "Approval needed: task distribution",
		Message: fmt.Sprintf("Task: %s. Suggested worker %s with score %.2f.",
			a.TaskDefinition.DisplayTitle(), a.SuggestedUserID, a.SuggestedScore),
		Type:       NotifyApproval,
		EntityType: "distribution_approval",
		EntityID:   a.ID,
		ActionURL:  ActionDistribution,
	})
}

func (s *Service) notifyReassigned(ctx context.Context, t model.Task, userID string) {
	s.notify(ctx, model.Notification{
		UserID:     userID,
		Title:      "Task reassigned to you",
		Message:    fmt.Sprintf("You were assigned %s, moved from an unavailable worker.", t.Title),
		Type:       NotifyTask,
		EntityType: "task",
		EntityID:   t.ID,
		ActionURL:  ActionTasks,
	})
}

func (s *Service) notifyReassignSummary(ctx context.Context, fromUserID string, n int) {
	s.notify(ctx, model.Notification{
		UserID:     s.manager(ctx),
		Title:      "Tasks redistributed",
		Message:    fmt.Sprintf("%d task(s) were reassigned from %s.", n, fromUserID),
		Type:       NotifyInfo,
		EntityType: "distribution",
		EntityID:   fromUserID,
		ActionURL:  ActionDistribution,
	})
}
