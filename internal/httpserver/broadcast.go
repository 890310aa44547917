package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type BroadcastRunner interface {
	Run(ctx context.Context, logID string) (int, error)
}

// BroadcastTrigger lets external cron (or an operator) kick one worker run
// over HTTP, optionally scoped to a single campaign.
type BroadcastTrigger struct {
	Runner BroadcastRunner
}

type runRequest struct {
	LogID string `json:"logId"`
}

type runResponse struct {
	Processed int `json:"processed"`
}

func (h *BroadcastTrigger) Register(m *mux.Router) {
	m.HandleFunc("/v1/broadcasts/run", h.handleRun).Methods(http.MethodPost)
}

func (h *BroadcastTrigger) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrInvalidJSON)
			return
		}
	}

	processed, err := h.Runner.Run(r.Context(), req.LogID)
	if err != nil {
		slog.Error("broadcast run failed", "log_id", req.LogID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Processed: processed})
}
