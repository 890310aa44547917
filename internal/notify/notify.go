package notify

import (
	"context"
	"log/slog"
	"time"

	"waresponder/internal/gateway"
	"waresponder/internal/observability"
	"waresponder/internal/store"
)

type Sender interface {
	Send(ctx context.Context, cfg store.GatewaySettings, req gateway.SendRequest) error
}

// Notifier dispatches best-effort alerts without blocking the caller. The
// alert runs on its own context and deadline, so an inbound webhook response
// never waits on it and its failure never affects the pipeline outcome.
type Notifier struct {
	Gateway Sender
	Timeout time.Duration
}

func New(sender Sender) *Notifier {
	return &Notifier{Gateway: sender, Timeout: 10 * time.Second}
}

// OwnerAlert tells the tenant owner about a message the system could not
// answer. Dispatch-and-log only.
func (n *Notifier) OwnerAlert(cfg store.GatewaySettings, ownerPhone, fromPhone, text string) {
	if n == nil || ownerPhone == "" || !cfg.Configured() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
		defer cancel()

		err := n.Gateway.Send(ctx, cfg, gateway.SendRequest{
			To:   ownerPhone,
			Type: "text",
			Body: "Unanswered message from " + fromPhone + ": " + text,
		})
		if err != nil {
			observability.OwnerAlerts.WithLabelValues("error").Inc()
			slog.Warn("owner alert failed", "owner", ownerPhone, "err", err)
			return
		}
		observability.OwnerAlerts.WithLabelValues("ok").Inc()
	}()
}
