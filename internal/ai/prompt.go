package ai

import (
	"strings"
	"unicode/utf8"

	"waresponder/internal/store"
)

// DefaultSystemPrompt is used when the tenant has not configured one.
const DefaultSystemPrompt = "You are a helpful customer service assistant for a business on WhatsApp."

// systemPreamble is fixed across vendors and tenants.
const systemPreamble = "Keep replies short, friendly and to the point. Always answer in the same language the customer writes in."

// KnowledgeCap bounds the flattened knowledge-base context fed to the vendor.
const KnowledgeCap = 8000

// Prompt carries everything the vendor adapters need to build a request.
// Assembly lives here so the per-vendor code is only envelope translation.
type Prompt struct {
	System    string           // tenant instruction, may be empty
	Knowledge string           // pre-capped context block, see BuildKnowledge
	History   []store.Exchange // newest first, as returned by the store
	Question  string
	ImageURL  string
}

// BuildKnowledge flattens Q/A pairs into one separator-joined block and
// truncates it to cap characters so a large corpus cannot blow up the prompt.
func BuildKnowledge(entries []store.KnowledgeEntry, limit int) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, "Q: "+e.Question+"\nA: "+e.Answer)
	}
	out := strings.Join(parts, "\n---\n")
	if limit > 0 && len(out) > limit {
		// back off to a rune boundary so the cut never produces invalid UTF-8
		cut := limit
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// SystemText is the system instruction sent to every vendor.
func (p Prompt) SystemText() string {
	sys := strings.TrimSpace(p.System)
	if sys == "" {
		sys = DefaultSystemPrompt
	}
	return sys + "\n" + systemPreamble
}

// UserText renders knowledge, history (oldest first) and the current question
// into the single user message shared by all vendor envelopes.
func (p Prompt) UserText() string {
	var b strings.Builder
	if p.Knowledge != "" {
		b.WriteString("Use the following knowledge base when relevant:\n")
		b.WriteString(p.Knowledge)
		b.WriteString("\n\n")
	}
	if len(p.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for i := len(p.History) - 1; i >= 0; i-- {
			e := p.History[i]
			b.WriteString("Customer: ")
			b.WriteString(e.Question)
			b.WriteString("\nAssistant: ")
			b.WriteString(e.Answer)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(p.Question)
	return b.String()
}
