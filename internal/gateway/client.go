package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"waresponder/internal/observability"
	"waresponder/internal/store"
)

// Client sends messages through a tenant-configured WhatsApp gateway.
// It never retries; retry policy belongs to the caller.
type Client struct {
	HTTP *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

type SendRequest struct {
	To       string
	Type     string // text, image, document
	Body     string
	MediaURL string
}

// SendError is the typed failure the callers classify on, instead of
// string-matching free-text error bodies.
type SendError struct {
	Status    int
	Body      string
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("gateway send failed: status %d: %s", e.Status, excerpt(e.Body))
}

func (e *SendError) Unwrap() error { return e.Err }

var ErrNotConfigured = errors.New("tenant gateway credentials not configured")

type payload struct {
	To       string     `json:"to"`
	Type     string     `json:"type"`
	Priority string     `json:"priority"`
	Text     *textPart  `json:"text,omitempty"`
	Image    *mediaPart `json:"image,omitempty"`
	Document *mediaPart `json:"document,omitempty"`
}

type textPart struct {
	Body string `json:"body"`
}

type mediaPart struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// Send POSTs a type-tagged message payload with bearer auth. Missing tenant
// credentials is a precondition failure; no network call is attempted.
func (c *Client) Send(ctx context.Context, cfg store.GatewaySettings, req SendRequest) error {
	if !cfg.Configured() {
		return ErrNotConfigured
	}

	body := payload{To: req.To, Type: req.Type, Priority: "normal"}
	switch req.Type {
	case "image":
		body.Image = &mediaPart{Link: req.MediaURL, Caption: req.Body}
	case "document":
		body.Document = &mediaPart{Link: req.MediaURL, Caption: req.Body}
	default:
		body.Type = "text"
		body.Text = &textPart{Body: req.Body}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return &SendError{Err: err, Permanent: true}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, bytes.NewReader(b))
	if err != nil {
		return &SendError{Err: err, Permanent: true}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	start := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		observability.GatewaySend.WithLabelValues("error", "0").Inc()
		// timeouts and transport errors may clear up on a later attempt
		return &SendError{Err: err, Permanent: false}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.GatewaySend.WithLabelValues("error", strconv.Itoa(resp.StatusCode)).Inc()
		return &SendError{
			Status:    resp.StatusCode,
			Body:      string(raw),
			Permanent: classifyPermanent(resp.StatusCode, string(raw)),
		}
	}

	observability.GatewaySend.WithLabelValues("ok", strconv.Itoa(resp.StatusCode)).Inc()
	return nil
}

// Permanent reports whether err is a send failure that no retry can fix.
func Permanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Permanent
	}
	return false
}

// 400/404 and "number not on WhatsApp" style rejections cannot succeed on a
// retry; 408/429 and 5xx are worth another attempt.
func classifyPermanent(status int, body string) bool {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return true
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	if status >= 500 {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "not on whatsapp") ||
		strings.Contains(lower, "not registered") ||
		status >= 400
}

func excerpt(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
