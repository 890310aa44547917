package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"waresponder/internal/gateway"
	"waresponder/internal/observability"
	"waresponder/internal/store"
	"waresponder/internal/util"
)

type Store interface {
	DueQueueItems(ctx context.Context, logID string, limit int) ([]store.QueueItem, error)
	MarkQueueItemSent(ctx context.Context, id string, now time.Time) error
	MarkQueueItemFailed(ctx context.Context, in store.QueueItemFailure) error
	RescheduleQueueItem(ctx context.Context, in store.QueueItemReschedule) error
	GetBroadcastLog(ctx context.Context, id string) (store.BroadcastLog, bool, error)
	GetGatewaySettings(ctx context.Context, tenantID string) (store.GatewaySettings, error)
	IncrementCampaignSent(ctx context.Context, logID string) (store.CampaignProgress, error)
	IncrementCampaignFailed(ctx context.Context, logID string) (store.CampaignProgress, error)
}

type Sender interface {
	Send(ctx context.Context, cfg store.GatewaySettings, req gateway.SendRequest) error
}

// Processor drains the broadcast queue. Items are handled strictly
// sequentially within one run so the inter-message throttle holds; periodic
// execution is driven by the caller (ticker or HTTP trigger).
type Processor struct {
	Store   Store
	Gateway Sender
	Limiter *rate.Limiter

	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration

	// randomized delay between items, the anti-spam throttle
	DelayMin time.Duration
	DelayMax time.Duration

	rng *rand.Rand
}

func NewProcessor(st Store, gw Sender, limiter *rate.Limiter) *Processor {
	return &Processor{
		Store:      st,
		Gateway:    gw,
		Limiter:    limiter,
		BatchSize:  100,
		MaxRetries: 3,
		RetryDelay: 5 * time.Minute,
		DelayMin:   time.Second,
		DelayMax:   3 * time.Second,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drains one batch of due items. logID narrows the run to one campaign;
// empty means all due items globally.
func (p *Processor) Run(ctx context.Context, logID string) (processed int, err error) {
	items, err := p.Store.DueQueueItems(ctx, logID, p.BatchSize)
	if err != nil {
		return 0, err
	}

	for i, it := range items {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		p.processItem(ctx, it)
		processed++

		if i < len(items)-1 {
			p.sleep(ctx)
		}
	}
	return processed, nil
}

func (p *Processor) processItem(ctx context.Context, it store.QueueItem) {
	now := util.NowUTC()

	log, found, err := p.Store.GetBroadcastLog(ctx, it.LogID)
	if err != nil {
		slog.Error("broadcast log lookup failed", "item_id", it.ID, "log_id", it.LogID, "err", err)
		return
	}
	if !found {
		// nothing to count against; the campaign row is gone
		p.fail(ctx, it, "campaign not found", false)
		return
	}

	gwCfg, err := p.Store.GetGatewaySettings(ctx, log.TenantID)
	if err != nil {
		slog.Error("gateway settings lookup failed", "item_id", it.ID, "tenant_id", log.TenantID, "err", err)
		return
	}
	if !gwCfg.Configured() {
		p.fail(ctx, it, "gateway credentials missing", true)
		return
	}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return
		}
	}

	mediaType := it.MediaType
	if mediaType == "" {
		mediaType = "text"
	}
	err = p.Gateway.Send(ctx, gwCfg, gateway.SendRequest{
		To:       it.Phone,
		Type:     mediaType,
		Body:     it.Message,
		MediaURL: it.MediaURL,
	})
	if err == nil {
		if e := p.Store.MarkQueueItemSent(ctx, it.ID, now); e != nil {
			slog.Error("mark queue item sent failed", "item_id", it.ID, "err", e)
			return
		}
		observability.BroadcastItems.WithLabelValues("sent").Inc()
		p.bumpCampaign(ctx, it.LogID, true)
		return
	}

	if gateway.Permanent(err) || it.RetryCount >= p.MaxRetries {
		p.fail(ctx, it, err.Error(), true)
		return
	}

	observability.BroadcastItems.WithLabelValues("retry").Inc()
	if e := p.Store.RescheduleQueueItem(ctx, store.QueueItemReschedule{
		ID:           it.ID,
		ErrorMessage: err.Error(),
		NextAttempt:  now.Add(p.RetryDelay),
		Now:          now,
	}); e != nil {
		slog.Error("reschedule queue item failed", "item_id", it.ID, "err", e)
	}
}

// fail terminates the item and, when bump is set, counts it against the
// campaign exactly once.
func (p *Processor) fail(ctx context.Context, it store.QueueItem, reason string, bump bool) {
	now := util.NowUTC()
	if err := p.Store.MarkQueueItemFailed(ctx, store.QueueItemFailure{
		ID: it.ID, ErrorMessage: reason, Now: now,
	}); err != nil {
		slog.Error("mark queue item failed failed", "item_id", it.ID, "err", err)
		return
	}
	observability.BroadcastItems.WithLabelValues("failed").Inc()
	slog.Warn("broadcast item failed", "item_id", it.ID, "log_id", it.LogID, "reason", reason)
	if bump {
		p.bumpCampaign(ctx, it.LogID, false)
	}
}

func (p *Processor) bumpCampaign(ctx context.Context, logID string, sent bool) {
	var progress store.CampaignProgress
	var err error
	if sent {
		progress, err = p.Store.IncrementCampaignSent(ctx, logID)
	} else {
		progress, err = p.Store.IncrementCampaignFailed(ctx, logID)
	}
	if err != nil {
		slog.Error("campaign counter update failed", "log_id", logID, "sent", sent, "err", err)
		return
	}
	if progress.Completed {
		slog.Info("campaign completed",
			"log_id", logID,
			"recipients", progress.TotalRecipients,
			"sent", progress.TotalSent,
			"failed", progress.TotalFailed,
		)
	}
}

func (p *Processor) sleep(ctx context.Context) {
	d := p.DelayMin
	if p.DelayMax > p.DelayMin {
		d += time.Duration(p.rng.Int63n(int64(p.DelayMax - p.DelayMin)))
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
