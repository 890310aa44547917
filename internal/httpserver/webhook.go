package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"waresponder/internal/domain"
	"waresponder/internal/observability"
)

type ReplyPipeline interface {
	Handle(ctx context.Context, tenantID string, in domain.InboundPayload) (domain.ReplyStatus, error)
}

// Webhook receives inbound WhatsApp messages from the gateway and feeds them
// through the reply pipeline. Callers only ever see a coarse status string or
// a 500 with the error message.
type Webhook struct {
	Pipeline ReplyPipeline
}

func (h *Webhook) Register(m *mux.Router) {
	m.HandleFunc("/v1/webhooks/wa/{tenantID}", h.handleInbound).Methods(http.MethodPost)
	// a missing tenant segment is a 400 from the handler, not a route miss
	m.HandleFunc("/v1/webhooks/wa", h.handleInbound).Methods(http.MethodPost)
	m.HandleFunc("/v1/webhooks/wa/", h.handleInbound).Methods(http.MethodPost)
}

func (h *Webhook) handleInbound(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, ErrMissingTenant)
		return
	}

	var in domain.InboundPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if err := in.Validate(); err != nil {
		if errors.Is(err, domain.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, ErrMissingFields)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.Pipeline.Handle(r.Context(), tenantID, in)
	if err != nil {
		slog.Error("reply pipeline failed",
			"err", err,
			"tenant_id", tenantID,
			"message_id", in.MessageID,
			"message_type", in.MessageType,
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	observability.PipelineOutcomes.WithLabelValues(string(status)).Inc()
	writeJSON(w, http.StatusOK, domain.StatusResponse{Status: status})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, domain.ErrorResponse{Error: msg})
}
