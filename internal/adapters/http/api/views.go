package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/okian/autodist/internal/adapters/repository"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

const maxLogLimit = 1000

// ViewsHandler serves read models and the distribution config.
type ViewsHandler struct {
	svc      Service
	log      logger.Logger
	validate *validator.Validate
}

// HandleWorkloads handles GET /workloads requests.
func (h *ViewsHandler) HandleWorkloads(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.AllWorkloads(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSkills handles GET /skills requests.
func (h *ViewsHandler) HandleSkills(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.AllSkills(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCandidates handles POST /candidates requests: a dry run ranking of
// every eligible worker for a task definition.
func (h *ViewsHandler) HandleCandidates(w http.ResponseWriter, r *http.Request) {
	var def model.TaskDefinition
	if err := decode(r, &def, h.validate, false); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if _, err := model.ParseTaskKind(string(def.Kind)); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if def.EstimatedMinutes <= 0 {
		def.EstimatedMinutes = model.DefaultEstimatedMinutes
	}
	out, err := h.svc.CandidateScores(r.Context(), def)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDistributionLog handles GET /distribution-log?limit=N requests.
func (h *ViewsHandler) HandleDistributionLog(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLogLimit {
			fail(w, r, h.log, fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, maxLogLimit))
			return
		}
		limit = n
	}
	out, err := h.svc.DistributionLog(r.Context(), limit)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetConfig handles GET /distribution-config requests.
func (h *ViewsHandler) HandleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.DistributionConfig())
}

// HandlePutConfig handles PUT /distribution-config requests.
func (h *ViewsHandler) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.DistributionConfig
	if err := decode(r, &cfg, h.validate, false); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if err := h.svc.SetDistributionConfig(r.Context(), cfg); err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.DistributionConfig())
}

// HandleStats handles GET /stats requests.
func (h *ViewsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Stats(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
