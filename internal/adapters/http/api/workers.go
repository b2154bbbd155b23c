package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

const dateLayout = "datetime=2006-01-02"

type userRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Active   *bool  `json:"active"`
}

type absenceRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type completeRequest struct {
	UserID string   `json:"user_id"`
	Rating *float64 `json:"rating" validate:"omitempty,gte=0"`
}

// WorkersHandler serves directory updates, reassignment and completions.
type WorkersHandler struct {
	svc      Service
	log      logger.Logger
	validate *validator.Validate
}

// HandlePutUser handles PUT /users/{id} requests.
func (h *WorkersHandler) HandlePutUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req, h.validate, false); err != nil {
		fail(w, r, h.log, err)
		return
	}
	u := model.User{
		ID:       chi.URLParam(r, "id"),
		FullName: req.FullName,
		Role:     req.Role,
		Active:   req.Active == nil || *req.Active,
	}
	if err := h.svc.RegisterUser(r.Context(), u); err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleMarkAbsent handles POST /users/{id}/absences requests.
func (h *WorkersHandler) HandleMarkAbsent(w http.ResponseWriter, r *http.Request) {
	var req absenceRequest
	if err := decode(r, &req, h.validate, true); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if err := h.svc.MarkAbsent(r.Context(), chi.URLParam(r, "id"), req.Date); err != nil {
		fail(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReassignUser handles POST /users/{id}/reassign requests.
func (h *WorkersHandler) HandleReassignUser(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReassignTasksFromUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReassignAbsent handles POST /absences/{date}/reassign requests. The
// date "today" resolves to the engine's current day.
func (h *WorkersHandler) HandleReassignAbsent(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if date == "today" {
		date = ""
	} else if err := h.validate.Var(date, dateLayout); err != nil {
		fail(w, r, h.log, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrBadRequest))
		return
	}
	res, err := h.svc.ReassignAbsent(r.Context(), date)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCompleteTask handles POST /tasks/{id}/complete requests.
func (h *WorkersHandler) HandleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(r, &req, h.validate, true); err != nil {
		fail(w, r, h.log, err)
		return
	}
	res, err := h.svc.CompleteTask(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Rating)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
