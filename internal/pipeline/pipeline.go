package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"waresponder/internal/ai"
	"waresponder/internal/domain"
	"waresponder/internal/gateway"
	"waresponder/internal/notify"
	"waresponder/internal/store"
	"waresponder/internal/util"
)

type Store interface {
	UpsertContact(ctx context.Context, in store.ContactUpsert) error
	GetContactName(ctx context.Context, tenantID, phone string) (string, error)
	InsertInbound(ctx context.Context, in store.InboundInsert) (bool, error)
	UpdateInboundReply(ctx context.Context, in store.InboundReplyUpdate) error
	RecentHistory(ctx context.Context, tenantID, phone string, limit int) ([]store.Exchange, error)
	FindTrigger(ctx context.Context, tenantID, text string) (store.Trigger, bool, error)
	KnowledgeEntries(ctx context.Context, tenantID string) ([]store.KnowledgeEntry, error)
	GetAISettings(ctx context.Context, tenantID string) (store.AISettings, error)
	GetGatewaySettings(ctx context.Context, tenantID string) (store.GatewaySettings, error)
	GetOwnerPhone(ctx context.Context, tenantID string) (string, error)
}

type Sender interface {
	Send(ctx context.Context, cfg store.GatewaySettings, req gateway.SendRequest) error
}

type Replier interface {
	Generate(ctx context.Context, cfg store.AISettings, p ai.Prompt) string
}

// Pipeline resolves a reply for one inbound message: record it, try a trigger
// match, fall back to AI, and record the outcome. Durability of receipt comes
// first: the inbox row is written before any reply is attempted and partial
// side effects are never rolled back.
type Pipeline struct {
	Store   Store
	Gateway Sender
	AI      Replier
	Alerts  *notify.Notifier

	IDGen        func() string
	HistoryLimit int
	KnowledgeCap int
}

func New(st Store, gw Sender, replier Replier) *Pipeline {
	return &Pipeline{
		Store:        st,
		Gateway:      gw,
		AI:           replier,
		IDGen:        util.NewInboxID,
		HistoryLimit: 20,
		KnowledgeCap: ai.KnowledgeCap,
	}
}

func (p *Pipeline) Handle(ctx context.Context, tenantID string, in domain.InboundPayload) (domain.ReplyStatus, error) {
	if !in.Eligible() {
		return domain.StatusIgnored, nil
	}

	phone := util.NormalizePhone(in.FromID)

	// Contact upsert failures are logged, never fatal.
	if err := p.Store.UpsertContact(ctx, store.ContactUpsert{
		TenantID: tenantID, Phone: phone, Name: in.FromName, Now: util.NowUTC(),
	}); err != nil {
		slog.Warn("contact upsert failed", "tenant_id", tenantID, "phone", phone, "err", err)
	}

	// The inbox row is the durability contract: written before any reply
	// attempt, so its failure aborts the pipeline.
	inserted, err := p.Store.InsertInbound(ctx, store.InboundInsert{
		ID:           p.IDGen(),
		TenantID:     tenantID,
		MessageID:    in.MessageID,
		Phone:        phone,
		Name:         in.FromName,
		InboxType:    in.MessageType,
		InboxMessage: in.MessageText,
		Status:       string(domain.StatusReceived),
		Now:          util.NowUTC(),
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		// duplicate webhook delivery for a message_id we already hold
		slog.Info("duplicate inbound message", "tenant_id", tenantID, "message_id", in.MessageID)
		return domain.StatusIgnored, nil
	}

	gwCfg, err := p.Store.GetGatewaySettings(ctx, tenantID)
	if err != nil {
		slog.Warn("gateway settings lookup failed", "tenant_id", tenantID, "err", err)
	}

	if status, done, err := p.tryTrigger(ctx, tenantID, phone, gwCfg, in); done {
		return status, err
	}

	if status, done, err := p.tryAI(ctx, tenantID, phone, gwCfg, in); done {
		return status, err
	}

	return p.noReply(ctx, tenantID, phone, gwCfg, in)
}

// tryTrigger performs the case-insensitive exact match against the trigger
// table. A matched trigger that fails to dispatch falls through to AI rather
// than ending the pipeline.
func (p *Pipeline) tryTrigger(ctx context.Context, tenantID, phone string, gwCfg store.GatewaySettings, in domain.InboundPayload) (domain.ReplyStatus, bool, error) {
	text := strings.TrimSpace(in.MessageText)
	if text == "" {
		return "", false, nil
	}

	trig, found, err := p.Store.FindTrigger(ctx, tenantID, text)
	if err != nil {
		slog.Error("trigger lookup failed", "tenant_id", tenantID, "err", err)
		return "", false, nil
	}
	if !found {
		return "", false, nil
	}

	name, err := p.Store.GetContactName(ctx, tenantID, phone)
	if err != nil || name == "" {
		name = in.FromName
	}
	rendered := util.RenderTemplate(trig.Content, name, phone)

	err = p.Gateway.Send(ctx, gwCfg, gateway.SendRequest{
		To:       phone,
		Type:     trig.MessageType,
		Body:     rendered,
		MediaURL: trig.URLImage,
	})
	if err != nil {
		slog.Error("trigger dispatch failed", "tenant_id", tenantID, "keyword", trig.Keyword, "err", err)
		return "", false, nil
	}

	// The inbox record is the durability contract: failing to record the
	// reply is fatal even though the send already went out. The unique
	// message_id makes a redelivery after the 500 a safe no-op.
	if err := p.Store.UpdateInboundReply(ctx, store.InboundReplyUpdate{
		TenantID:     tenantID,
		MessageID:    in.MessageID,
		Status:       string(domain.StatusRepliedTrigger),
		ReplyType:    trig.MessageType,
		ReplyMessage: rendered,
		ReplyImage:   trig.URLImage,
		Now:          util.NowUTC(),
	}); err != nil {
		slog.Error("inbox update failed after trigger reply", "tenant_id", tenantID, "message_id", in.MessageID, "err", err)
		return "", true, err
	}
	return domain.StatusRepliedTrigger, true, nil
}

// tryAI builds the prompt and asks the configured vendor. Only text and image
// messages qualify; an empty completion falls through to no_reply.
func (p *Pipeline) tryAI(ctx context.Context, tenantID, phone string, gwCfg store.GatewaySettings, in domain.InboundPayload) (domain.ReplyStatus, bool, error) {
	if in.MessageType != domain.TypeText && in.MessageType != domain.TypeImage {
		return "", false, nil
	}

	aiCfg, err := p.Store.GetAISettings(ctx, tenantID)
	if err != nil {
		slog.Warn("ai settings lookup failed", "tenant_id", tenantID, "err", err)
		return "", false, nil
	}

	history, err := p.Store.RecentHistory(ctx, tenantID, phone, p.HistoryLimit)
	if err != nil {
		slog.Warn("history lookup failed", "tenant_id", tenantID, "phone", phone, "err", err)
	}
	entries, err := p.Store.KnowledgeEntries(ctx, tenantID)
	if err != nil {
		slog.Warn("knowledge lookup failed", "tenant_id", tenantID, "err", err)
	}

	completion := p.AI.Generate(ctx, aiCfg, ai.Prompt{
		System:    aiCfg.SystemPrompt,
		Knowledge: ai.BuildKnowledge(entries, p.KnowledgeCap),
		History:   history,
		Question:  in.MessageText,
		ImageURL:  in.ImageURL(),
	})
	if completion == "" {
		return "", false, nil
	}

	err = p.Gateway.Send(ctx, gwCfg, gateway.SendRequest{
		To:   phone,
		Type: domain.TypeText,
		Body: completion,
	})
	if err != nil {
		slog.Error("ai dispatch failed", "tenant_id", tenantID, "phone", phone, "err", err)
		return "", false, nil
	}

	if err := p.Store.UpdateInboundReply(ctx, store.InboundReplyUpdate{
		TenantID:     tenantID,
		MessageID:    in.MessageID,
		Status:       string(domain.StatusRepliedAI),
		ReplyType:    domain.TypeText,
		ReplyMessage: completion,
		Now:          util.NowUTC(),
	}); err != nil {
		slog.Error("inbox update failed after ai reply", "tenant_id", tenantID, "message_id", in.MessageID, "err", err)
		return "", true, err
	}
	return domain.StatusRepliedAI, true, nil
}

func (p *Pipeline) noReply(ctx context.Context, tenantID, phone string, gwCfg store.GatewaySettings, in domain.InboundPayload) (domain.ReplyStatus, error) {
	if err := p.Store.UpdateInboundReply(ctx, store.InboundReplyUpdate{
		TenantID:  tenantID,
		MessageID: in.MessageID,
		Status:    string(domain.StatusNoReply),
		Now:       util.NowUTC(),
	}); err != nil {
		return "", err
	}

	if p.Alerts != nil {
		owner, err := p.Store.GetOwnerPhone(ctx, tenantID)
		if err != nil {
			slog.Warn("owner phone lookup failed", "tenant_id", tenantID, "err", err)
		} else {
			p.Alerts.OwnerAlert(gwCfg, owner, phone, in.MessageText)
		}
	}
	return domain.StatusNoReply, nil
}
