package ai

import (
	"net/http"

	"waresponder/internal/store"
)

// Generation budget shared by every vendor.
const (
	temperature     = 0.7
	maxOutputTokens = 512
)

// Vendor names accepted in the tenant's ai_vendor setting.
const (
	VendorOpenAI     = "openai"
	VendorGroq       = "groq"
	VendorOpenRouter = "openrouter"
	VendorGemini     = "gemini"
)

// adapter is implemented once per vendor. The three methods cover the only
// ways vendors actually differ: request envelope, credential placement and
// response extraction path. Prompt assembly stays in Prompt.
type adapter interface {
	name() string
	buildRequest(cfg store.AISettings, p Prompt) (*http.Request, error)
	authenticate(req *http.Request, cfg store.AISettings)
	extractText(body []byte) string
}

func adapterFor(vendor string) (adapter, bool) {
	switch vendor {
	case VendorOpenAI:
		return chatCompletionsAdapter{
			vendor:       VendorOpenAI,
			endpoint:     "https://api.openai.com/v1/chat/completions",
			defaultModel: "gpt-4o-mini",
			multimodal:   true,
		}, true
	case VendorGroq:
		return chatCompletionsAdapter{
			vendor:       VendorGroq,
			endpoint:     "https://api.groq.com/openai/v1/chat/completions",
			defaultModel: "llama-3.3-70b-versatile",
		}, true
	case VendorOpenRouter:
		return chatCompletionsAdapter{
			vendor:       VendorOpenRouter,
			endpoint:     "https://openrouter.ai/api/v1/chat/completions",
			defaultModel: "openai/gpt-4o-mini",
			multimodal:   true,
		}, true
	case VendorGemini:
		return geminiAdapter{defaultModel: "gemini-2.0-flash"}, true
	}
	return nil, false
}
