package ai

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"waresponder/internal/store"
)

// chatCompletionsAdapter covers the OpenAI-compatible family (OpenAI, Groq,
// OpenRouter): messages array envelope, bearer auth, choices extraction.
type chatCompletionsAdapter struct {
	vendor       string
	endpoint     string
	defaultModel string
	multimodal   bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a chatCompletionsAdapter) name() string { return a.vendor }

func (a chatCompletionsAdapter) buildRequest(cfg store.AISettings, p Prompt) (*http.Request, error) {
	model := cfg.Model
	if model == "" {
		model = a.defaultModel
	}

	var userContent any = p.UserText()
	if a.multimodal && p.ImageURL != "" {
		userContent = []map[string]any{
			{"type": "text", "text": p.UserText()},
			{"type": "image_url", "image_url": map[string]string{"url": p.ImageURL}},
		}
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: p.SystemText()},
			{Role: "user", Content: userContent},
		},
		Temperature: temperature,
		MaxTokens:   maxOutputTokens,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, a.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a chatCompletionsAdapter) authenticate(req *http.Request, cfg store.AISettings) {
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
}

func (a chatCompletionsAdapter) extractText(body []byte) string {
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	if len(out.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(out.Choices[0].Message.Content)
}
