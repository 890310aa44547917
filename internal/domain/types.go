package domain

import "errors"

// ReplyStatus is the final outcome of one inbound message's handling.
type ReplyStatus string

const (
	StatusIgnored        ReplyStatus = "ignored"
	StatusReceived       ReplyStatus = "received"
	StatusRepliedTrigger ReplyStatus = "replied_trigger"
	StatusRepliedAI      ReplyStatus = "replied_ai"
	StatusNoReply        ReplyStatus = "no_reply"
)

// Message types the pipeline will process. Everything else is ignored.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeDocument = "document"
)

// InboundPayload is the webhook body as delivered by the WhatsApp source.
type InboundPayload struct {
	IsGroup     bool   `json:"is_group"`
	IsFromMe    bool   `json:"is_from_me"`
	MessageType string `json:"message_type"`
	FromID      string `json:"from_id"`
	FromName    string `json:"from_name"`
	MessageText string `json:"message_text"`
	MessageID   string `json:"message_id"`
	MediaURL    string `json:"media_url,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Eligible reports whether the payload should enter the reply pipeline.
// Group chatter, echoes of our own sends and unsupported types are skipped
// without any persistence.
func (p InboundPayload) Eligible() bool {
	if p.IsGroup || p.IsFromMe {
		return false
	}
	switch p.MessageType {
	case TypeText, TypeImage, TypeDocument:
		return true
	}
	return false
}

// ImageURL returns whichever media field the source populated.
func (p InboundPayload) ImageURL() string {
	if p.MediaURL != "" {
		return p.MediaURL
	}
	return p.URL
}

func (p InboundPayload) Validate() error {
	if p.FromID == "" || p.MessageID == "" {
		return ErrMissingFields
	}
	return nil
}

var ErrMissingFields = errors.New("missing required fields")

// StatusResponse is the webhook's success envelope.
type StatusResponse struct {
	Status ReplyStatus `json:"status"`
}

// ErrorResponse is the webhook's failure envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
