package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"waresponder/internal/observability"
	"waresponder/internal/store"
)

// Generator dispatches a prompt to the tenant-configured vendor adapter.
// Every failure mode, from missing credentials to a tripped breaker to a
// malformed response, comes back as an empty string: the caller cannot and
// should not distinguish "no answer" from "adapter error".
type Generator struct {
	HTTP *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewGenerator(timeout time.Duration) *Generator {
	return &Generator{
		HTTP:     &http.Client{Timeout: timeout},
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// breaker returns the vendor's circuit breaker, created on first use. One
// breaker per vendor, so a broken vendor cannot blank replies routed through
// the others.
func (g *Generator) breaker(vendor string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.breakers == nil {
		g.breakers = map[string]*gobreaker.CircuitBreaker{}
	}
	b, ok := g.breakers[vendor]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ai-" + vendor,
			MaxRequests: 3,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		})
		g.breakers[vendor] = b
	}
	return b
}

func (g *Generator) Generate(ctx context.Context, cfg store.AISettings, p Prompt) string {
	if !cfg.Configured() {
		slog.Debug("ai vendor not configured, skipping")
		return ""
	}
	ad, ok := adapterFor(cfg.Vendor)
	if !ok {
		slog.Warn("unknown ai vendor", "vendor", cfg.Vendor)
		observability.AICalls.WithLabelValues(cfg.Vendor, "unknown_vendor").Inc()
		return ""
	}

	req, err := ad.buildRequest(cfg, p)
	if err != nil {
		slog.Error("ai build request failed", "vendor", ad.name(), "err", err)
		observability.AICalls.WithLabelValues(ad.name(), "error").Inc()
		return ""
	}
	ad.authenticate(req, cfg)

	start := time.Now()
	body, err := g.execute(ad.name(), req.WithContext(ctx))
	observability.AILatency.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("ai vendor call failed", "vendor", ad.name(), "err", err)
		observability.AICalls.WithLabelValues(ad.name(), "error").Inc()
		return ""
	}

	text := ad.extractText(body)
	if text == "" {
		observability.AICalls.WithLabelValues(ad.name(), "empty").Inc()
		return ""
	}
	observability.AICalls.WithLabelValues(ad.name(), "ok").Inc()
	return text
}

func (g *Generator) execute(vendor string, req *http.Request) ([]byte, error) {
	out, err := g.breaker(vendor).Execute(func() (any, error) {
		resp, err := g.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &vendorError{status: resp.StatusCode}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

type vendorError struct {
	status int
}

func (e *vendorError) Error() string {
	return fmt.Sprintf("ai vendor returned status %d", e.status)
}
