package service

import (
	"context"
	"time"

	"github.com/okian/autodist/internal/domain/distconfig"
	"github.com/okian/autodist/internal/domain/history"
	"github.com/okian/autodist/internal/domain/model"
)

// TaskStore owns task rows.
type TaskStore interface {
	OpenTasksByUser(ctx context.Context, userID string) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	CreateAssignedTask(ctx context.Context, t model.Task, entry model.DistributionLogEntry) (model.Task, error)
	ReassignTask(ctx context.Context, taskID, fromUserID, toUserID string, entry model.DistributionLogEntry) error
	CompleteTask(ctx context.Context, taskID string, completedAt time.Time, rating *float64) error
}

// UserDirectory resolves workers, absences and managers.
type UserDirectory interface {
	ActiveUsers(ctx context.Context) ([]model.User, error)
	AbsentUserIDs(ctx context.Context, date string) ([]string, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	FirstActiveUserWithRole(ctx context.Context, roles []string) (model.User, error)
}

// Roster records directory changes pushed by the operations surface.
type Roster interface {
	UpsertUser(ctx context.Context, u model.User) error
	RecordAbsence(ctx context.Context, userID, date string) error
}

// ApprovalStore persists approval requests and their decisions.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, a model.AssignmentApproval) (model.AssignmentApproval, error)
	GetApproval(ctx context.Context, id string) (model.AssignmentApproval, error)
	PendingApprovals(ctx context.Context) ([]model.AssignmentApproval, error)
	ApproveAndCreate(ctx context.Context, approvalID, managerID string, t model.Task, entry model.DistributionLogEntry, decidedAt time.Time) (model.Task, error)
	RejectApproval(ctx context.Context, approvalID, managerID string) (int64, error)
}

// DistributionLog reads the assignment audit trail.
type DistributionLog interface {
	DistributionLog(ctx context.Context, limit int) ([]model.DistributionLogEntry, error)
	Stats(ctx context.Context) (model.DistributionStats, error)
}

// Notifier hands notifications to the outbound channel.
type Notifier interface {
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
}

// SkillStore persists learned skill scores.
type SkillStore = history.Store

// ConfigStore persists the distribution config.
type ConfigStore = distconfig.Store

// Store is everything the orchestrator persists through.
type Store interface {
	TaskStore
	UserDirectory
	Roster
	ApprovalStore
	DistributionLog
	Notifier
	SkillStore
	ConfigStore
}
