package store

import "time"

type Contact struct {
	TenantID  string
	Phone     string
	Name      string
	CreatedAt time.Time
}

type ContactUpsert struct {
	TenantID string
	Phone    string
	Name     string
	Now      time.Time
}

type InboundInsert struct {
	ID           string
	TenantID     string
	MessageID    string
	Phone        string
	Name         string
	InboxType    string
	InboxMessage string
	Status       string
	Now          time.Time
}

type InboundReplyUpdate struct {
	TenantID     string
	MessageID    string
	Status       string
	ReplyType    string
	ReplyMessage string
	ReplyImage   string
	Now          time.Time
}

// Exchange is one prior question/answer pair used as AI conversation context.
type Exchange struct {
	Question string
	Answer   string
	At       time.Time
}

type Trigger struct {
	TenantID    string
	Keyword     string
	MessageType string
	Content     string
	URLImage    string
}

type KnowledgeEntry struct {
	Question string
	Answer   string
}

// AISettings is the per-tenant AI configuration resolved from the settings
// table once per request and passed down.
type AISettings struct {
	Vendor       string
	APIKey       string
	Model        string
	SystemPrompt string
}

func (s AISettings) Configured() bool { return s.Vendor != "" && s.APIKey != "" }

// GatewaySettings is the per-tenant outbound messaging configuration.
// Absence is a hard failure for dispatch.
type GatewaySettings struct {
	APIURL string
	APIKey string
}

func (s GatewaySettings) Configured() bool { return s.APIURL != "" && s.APIKey != "" }

type BroadcastLog struct {
	ID              string
	TenantID        string
	TotalRecipients int
	TotalSent       int
	TotalFailed     int
	Status          string
}

type QueueItem struct {
	ID          string
	LogID       string
	Phone       string
	Message     string
	MediaType   string
	MediaURL    string
	Status      string
	RetryCount  int
	ScheduledAt time.Time
}

type QueueItemFailure struct {
	ID           string
	ErrorMessage string
	Now          time.Time
}

type QueueItemReschedule struct {
	ID           string
	ErrorMessage string
	NextAttempt  time.Time
	Now          time.Time
}

// CampaignProgress is the counter snapshot returned by the atomic campaign
// increments, used only for logging.
type CampaignProgress struct {
	TotalRecipients int
	TotalSent       int
	TotalFailed     int
	Completed       bool
}
