package service

import "errors"

var (
	// ErrApprovalNotPending is returned when an approval is unknown or was
	// already decided.
	ErrApprovalNotPending = errors.New("approval is not pending")
	// ErrUnknownUser is returned for an override assignee that is not an
	// active user.
	ErrUnknownUser = errors.New("unknown or inactive user")
	// ErrTaskNotFound is returned when a completed task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAssigneeMismatch is returned when a completion is reported by
	// someone other than the assignee.
	ErrAssigneeMismatch = errors.New("task is assigned to another user")
	// ErrTaskNotOpen is returned when completing a task that is already closed.
	ErrTaskNotOpen = errors.New("task is not open")
)
