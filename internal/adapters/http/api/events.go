package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/autodist/internal/adapters/mq/bus"
	"github.com/okian/autodist/internal/domain/dedupe"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// eventRequest is the body of POST /events. EventID is the client's
// idempotency key; events without one are never deduplicated.
type eventRequest struct {
	EventID string        `json:"event_id" validate:"omitempty,max=128"`
	Type    string        `json:"type" validate:"required"`
	Payload model.Payload `json:"payload"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id,omitempty"`
}

// EventsHandler ingests business events onto the bus.
type EventsHandler struct {
	events   EventEmitter
	dedupe   dedupe.Deduper
	metrics  *metrics.Manager
	log      logger.Logger
	validate *validator.Validate
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(r, &req, h.validate, false); err != nil {
		fail(w, r, h.log, err)
		return
	}
	et, err := model.ParseEventType(req.Type)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	if h.events == nil {
		fail(w, r, h.log, ErrUnavailable)
		return
	}

	if req.EventID != "" && h.dedupe.SeenAndRecord(r.Context(), req.EventID) {
		h.metrics.RecordDuplicateEvent()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	ev, err := h.events.Emit(r.Context(), et, req.Payload)
	if err != nil {
		// Forget the id so the client can retry.
		if req.EventID != "" {
			h.dedupe.Unrecord(r.Context(), req.EventID)
		}
		if !errors.Is(err, bus.ErrBackpressure) && !errors.Is(err, bus.ErrClosed) {
			h.log.Error(r.Context(), "emit failed", logger.String("event_type", req.Type), logger.Error(err))
		}
		fail(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ev.ID})
}
