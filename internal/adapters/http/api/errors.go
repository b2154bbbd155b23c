package api

import (
	"errors"
	"net/http"

	"github.com/okian/autodist/internal/adapters/mq/bus"
	"github.com/okian/autodist/internal/adapters/repository"
	service "github.com/okian/autodist/internal/app"
	"github.com/okian/autodist/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrServe        = errors.New("http serve failed")
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidConfig),
		errors.Is(err, model.ErrUnknownEventType),
		errors.Is(err, model.ErrUnknownTaskKind),
		errors.Is(err, repository.ErrInvalidEntity):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrAssigneeMismatch):
		return http.StatusForbidden, "assignee_mismatch"
	case errors.Is(err, service.ErrApprovalNotPending):
		return http.StatusConflict, "approval_not_pending"
	case errors.Is(err, service.ErrTaskNotOpen),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrUnknownUser):
		return http.StatusUnprocessableEntity, "unknown_user"
	case errors.Is(err, ErrBackpressure), errors.Is(err, bus.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable), errors.Is(err, bus.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
