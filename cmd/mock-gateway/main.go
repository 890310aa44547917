package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"waresponder/internal/config"
	"waresponder/internal/logging"
)

type sendPayload struct {
	To       string `json:"to"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Text     *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image *struct {
		Link    string `json:"link"`
		Caption string `json:"caption"`
	} `json:"image"`
	Document *struct {
		Link    string `json:"link"`
		Caption string `json:"caption"`
	} `json:"document"`
}

type sendResponse struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type server struct {
	cfg   config.MockGatewayConfig
	idx   uint64
	rng   *rand.Rand
	rngMu sync.Mutex
}

func main() {
	cfg := config.LoadMockGateway()
	logging.Init("mock-gateway", cfg.LogFormat)

	s := &server{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	router := mux.NewRouter()
	router.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)

	slog.Info("mock gateway listening", "port", cfg.Port, "success_rate", cfg.SuccessRate)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(router)); err != nil {
		slog.Error("mock gateway server failed", "err", err)
		os.Exit(1)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock gateway request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") == "" {
		writeJSON(w, http.StatusUnauthorized, sendResponse{Status: "error", Message: "missing or invalid token"})
		return
	}

	var p sendPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "invalid json"})
		return
	}
	if p.To == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "missing recipient"})
		return
	}
	switch p.Type {
	case "text":
		if p.Text == nil || p.Text.Body == "" {
			writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "missing text body"})
			return
		}
	case "image", "document":
		if p.Image == nil && p.Document == nil {
			writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "missing media link"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "unsupported type"})
		return
	}

	if s.cfg.DelayMs > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(time.Duration(s.cfg.DelayMs) * time.Millisecond):
		}
	}

	s.rngMu.Lock()
	ok := s.rng.Float64() <= s.cfg.SuccessRate
	kind := s.rng.Float64()
	s.rngMu.Unlock()

	if !ok {
		// split failures between a retryable overload and a permanent rejection
		if kind < 0.5 {
			writeJSON(w, http.StatusTooManyRequests, sendResponse{Status: "error", Message: "rate limited"})
			return
		}
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "recipient not on whatsapp"})
		return
	}

	id := fmt.Sprintf("wamid.MOCK%06d", atomic.AddUint64(&s.idx, 1))
	writeJSON(w, http.StatusOK, sendResponse{ID: id, Status: "sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
