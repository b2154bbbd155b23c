package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

type approveRequest struct {
	ManagerID      string `json:"manager_id" validate:"required"`
	OverrideUserID string `json:"override_user_id"`
}

type rejectRequest struct {
	ManagerID string `json:"manager_id" validate:"required"`
}

// ApprovalsHandler serves the manager approval flow.
type ApprovalsHandler struct {
	svc      Service
	log      logger.Logger
	validate *validator.Validate
}

// HandleList handles GET /approvals requests.
func (h *ApprovalsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.PendingApprovals(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	if out == nil {
		out = []model.AssignmentApproval{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleApprove handles POST /approvals/{id}/approve requests.
func (h *ApprovalsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decode(r, &req, h.validate, false); err != nil {
		fail(w, r, h.log, err)
		return
	}
	res, err := h.svc.ApproveAssignment(r.Context(), chi.URLParam(r, "id"), req.ManagerID, req.OverrideUserID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReject handles POST /approvals/{id}/reject requests.
func (h *ApprovalsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decode(r, &req, h.validate, false); err != nil {
		fail(w, r, h.log, err)
		return
	}
	res, err := h.svc.RejectApproval(r.Context(), chi.URLParam(r, "id"), req.ManagerID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
