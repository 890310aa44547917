package ai

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"waresponder/internal/store"
)

// geminiAdapter speaks the generateContent envelope: contents/parts arrays,
// API key in the query string, candidates extraction.
type geminiAdapter struct {
	defaultModel string
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	FileURI string `json:"file_uri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (a geminiAdapter) name() string { return VendorGemini }

func (a geminiAdapter) buildRequest(cfg store.AISettings, p Prompt) (*http.Request, error) {
	model := cfg.Model
	if model == "" {
		model = a.defaultModel
	}

	parts := []geminiPart{{Text: p.UserText()}}
	if p.ImageURL != "" {
		parts = append(parts, geminiPart{FileData: &geminiFileData{FileURI: p.ImageURL}})
	}

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: p.SystemText()}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig:  geminiGenConfig{Temperature: temperature, MaxOutputTokens: maxOutputTokens},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent"
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a geminiAdapter) authenticate(req *http.Request, cfg store.AISettings) {
	q := req.URL.Query()
	q.Set("key", cfg.APIKey)
	req.URL.RawQuery = q.Encode()
}

func (a geminiAdapter) extractText(body []byte) string {
	var out geminiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
}
