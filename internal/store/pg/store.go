package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"waresponder/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// UpsertContact records the contact keyed by (tenant, phone). A later message
// with a non-empty name wins over an earlier empty one; an empty name never
// clobbers a stored one.
func (s *Store) UpsertContact(ctx context.Context, in store.ContactUpsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO contacts (tenant_id, phone, name, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, phone)
		DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name,''), contacts.name)
	`, in.TenantID, in.Phone, in.Name, in.Now)
	return err
}

func (s *Store) GetContactName(ctx context.Context, tenantID, phone string) (string, error) {
	var name string
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(name,'') FROM contacts WHERE tenant_id=$1 AND phone=$2
	`, tenantID, phone).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// InsertInbound appends the inbound record. It returns false without error
// when (tenant, message_id) already exists, i.e. a duplicate webhook delivery.
func (s *Store) InsertInbound(ctx context.Context, in store.InboundInsert) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO inbox (id, tenant_id, message_id, phone, name, inbox_type, inbox_message, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tenant_id, message_id) DO NOTHING
	`, in.ID, in.TenantID, in.MessageID, in.Phone, in.Name, in.InboxType, in.InboxMessage, in.Status, in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) UpdateInboundReply(ctx context.Context, in store.InboundReplyUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE inbox
		SET status=$3, reply_type=$4, reply_message=$5, reply_image=$6, updated_at=$7
		WHERE tenant_id=$1 AND message_id=$2
	`, in.TenantID, in.MessageID, in.Status, nullIfEmpty(in.ReplyType), nullIfEmpty(in.ReplyMessage), nullIfEmpty(in.ReplyImage), in.Now)
	return err
}

// RecentHistory returns up to limit prior answered exchanges for this phone,
// newest first. It is a best-effort recency window, not a transcript.
func (s *Store) RecentHistory(ctx context.Context, tenantID, phone string, limit int) ([]store.Exchange, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT inbox_message, COALESCE(reply_message,''), created_at
		FROM inbox
		WHERE tenant_id=$1 AND phone=$2 AND status IN ('replied_trigger','replied_ai')
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Exchange
	for rows.Next() {
		var e store.Exchange
		if err := rows.Scan(&e.Question, &e.Answer, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindTrigger does a case-insensitive exact-match lookup of the trimmed
// message text (the table enforces unique keywords per tenant).
func (s *Store) FindTrigger(ctx context.Context, tenantID, text string) (store.Trigger, bool, error) {
	var t store.Trigger
	err := s.DB.QueryRow(ctx, `
		SELECT tenant_id, keyword, message_type, content, COALESCE(url_image,'')
		FROM autoreplies
		WHERE tenant_id=$1 AND LOWER(keyword)=LOWER($2)
	`, tenantID, text).Scan(&t.TenantID, &t.Keyword, &t.MessageType, &t.Content, &t.URLImage)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Trigger{}, false, nil
	}
	if err != nil {
		return store.Trigger{}, false, err
	}
	return t, true, nil
}

func (s *Store) KnowledgeEntries(ctx context.Context, tenantID string) ([]store.KnowledgeEntry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT question, answer FROM ai_knowledge_base WHERE tenant_id=$1 ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.KnowledgeEntry
	for rows.Next() {
		var e store.KnowledgeEntry
		if err := rows.Scan(&e.Question, &e.Answer); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetAISettings(ctx context.Context, tenantID string) (store.AISettings, error) {
	m, err := s.settings(ctx, tenantID, "ai_vendor", "ai_api_key", "ai_model", "ai_system_prompt")
	if err != nil {
		return store.AISettings{}, err
	}
	return store.AISettings{
		Vendor:       m["ai_vendor"],
		APIKey:       m["ai_api_key"],
		Model:        m["ai_model"],
		SystemPrompt: m["ai_system_prompt"],
	}, nil
}

func (s *Store) GetGatewaySettings(ctx context.Context, tenantID string) (store.GatewaySettings, error) {
	m, err := s.settings(ctx, tenantID, "gateway_api_url", "gateway_api_key")
	if err != nil {
		return store.GatewaySettings{}, err
	}
	return store.GatewaySettings{APIURL: m["gateway_api_url"], APIKey: m["gateway_api_key"]}, nil
}

func (s *Store) GetOwnerPhone(ctx context.Context, tenantID string) (string, error) {
	m, err := s.settings(ctx, tenantID, "owner_phone")
	if err != nil {
		return "", err
	}
	return m["owner_phone"], nil
}

func (s *Store) settings(ctx context.Context, tenantID string, keys ...string) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT key, value FROM settings WHERE tenant_id=$1 AND key = ANY($2)
	`, tenantID, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// DueQueueItems returns up to limit broadcast queue items that are due for a
// send attempt, oldest schedule first. Terminal items never come back.
func (s *Store) DueQueueItems(ctx context.Context, logID string, limit int) ([]store.QueueItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, log_id, phone, message, COALESCE(media_type,''), COALESCE(media_url,''),
		       status, retry_count, scheduled_at
		FROM broadcast_queue
		WHERE status IN ('scheduled','pending')
		  AND scheduled_at <= now()
		  AND ($1 = '' OR log_id = $1)
		ORDER BY scheduled_at
		LIMIT $2
	`, logID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.QueueItem
	for rows.Next() {
		var it store.QueueItem
		if err := rows.Scan(&it.ID, &it.LogID, &it.Phone, &it.Message, &it.MediaType,
			&it.MediaURL, &it.Status, &it.RetryCount, &it.ScheduledAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) MarkQueueItemSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE broadcast_queue SET status='sent', error_message=NULL, updated_at=$2 WHERE id=$1
	`, id, now)
	return err
}

func (s *Store) MarkQueueItemFailed(ctx context.Context, in store.QueueItemFailure) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE broadcast_queue SET status='failed', error_message=$2, updated_at=$3 WHERE id=$1
	`, in.ID, in.ErrorMessage, in.Now)
	return err
}

func (s *Store) RescheduleQueueItem(ctx context.Context, in store.QueueItemReschedule) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE broadcast_queue
		SET status='pending', retry_count = retry_count + 1, error_message=$2, scheduled_at=$3, updated_at=$4
		WHERE id=$1
	`, in.ID, in.ErrorMessage, in.NextAttempt, in.Now)
	return err
}

func (s *Store) GetBroadcastLog(ctx context.Context, id string) (store.BroadcastLog, bool, error) {
	var l store.BroadcastLog
	err := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, total_recipients, total_sent, total_failed, status
		FROM broadcast_logs WHERE id=$1
	`, id).Scan(&l.ID, &l.TenantID, &l.TotalRecipients, &l.TotalSent, &l.TotalFailed, &l.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.BroadcastLog{}, false, nil
	}
	if err != nil {
		return store.BroadcastLog{}, false, err
	}
	return l, true, nil
}

// IncrementCampaignSent bumps total_sent atomically and flips the campaign to
// completed in the same statement once sent+failed covers all recipients, so
// concurrent worker runs cannot double-complete or lose a count.
func (s *Store) IncrementCampaignSent(ctx context.Context, logID string) (store.CampaignProgress, error) {
	return s.incrementCampaign(ctx, logID, `
		UPDATE broadcast_logs
		SET total_sent = total_sent + 1,
		    status = CASE WHEN total_sent + 1 + total_failed >= total_recipients
		                  THEN 'completed' ELSE status END
		WHERE id=$1
		RETURNING total_recipients, total_sent, total_failed, status
	`)
}

func (s *Store) IncrementCampaignFailed(ctx context.Context, logID string) (store.CampaignProgress, error) {
	return s.incrementCampaign(ctx, logID, `
		UPDATE broadcast_logs
		SET total_failed = total_failed + 1,
		    status = CASE WHEN total_sent + total_failed + 1 >= total_recipients
		                  THEN 'completed' ELSE status END
		WHERE id=$1
		RETURNING total_recipients, total_sent, total_failed, status
	`)
}

func (s *Store) incrementCampaign(ctx context.Context, logID, query string) (store.CampaignProgress, error) {
	var p store.CampaignProgress
	var status string
	err := s.DB.QueryRow(ctx, query, logID).Scan(&p.TotalRecipients, &p.TotalSent, &p.TotalFailed, &status)
	if err != nil {
		return store.CampaignProgress{}, err
	}
	p.Completed = status == "completed"
	return p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
