// Package usage records per-call token consumption observed by the gateway.
package usage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Record struct {
	ID           string    `json:"id"`
	AppID        string    `json:"appId"`
	AppName      string    `json:"appName"`
	KeyName      string    `json:"keyName"`
	Model        string    `json:"model"`
	Endpoint     string    `json:"endpoint"`
	PromptTokens int       `json:"promptTokens"`
	OutputTokens int       `json:"outputTokens"`
	Status       string    `json:"status"` // "success" or "error"
	CreatedAt    time.Time `json:"createdAt"`
}

func NewRecord(appID, appName, keyName, model, endpoint string, promptTokens, outputTokens int, status string) Record {
	return Record{
		ID:           uuid.NewString(),
		AppID:        appID,
		AppName:      appName,
		KeyName:      keyName,
		Model:        model,
		Endpoint:     endpoint,
		PromptTokens: promptTokens,
		OutputTokens: outputTokens,
		Status:       status,
		CreatedAt:    time.Now(),
	}
}

type Repo interface {
	Put(id string, record Record) error
	List() ([]Record, error)
	Clear() error
}

// ModelFromRequest extracts the model name from an OpenAI-style request
// body, falling back to "unknown".
func ModelFromRequest(body []byte) string {
	if len(body) == 0 {
		return "unknown"
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		return "unknown"
	}
	return req.Model
}

// Tokens holds the usage counters reported by an upstream response.
type Tokens struct {
	Prompt int
	Output int
	Model  string
}

// TokensFromResponse extracts usage counters from a non-streaming
// OpenAI-style response body. A body without a usage block yields zeroes.
func TokensFromResponse(body []byte) Tokens {
	var resp struct {
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Tokens{}
	}
	return Tokens{
		Prompt: resp.Usage.PromptTokens,
		Output: resp.Usage.CompletionTokens,
		Model:  resp.Model,
	}
}

// StreamExtractor accumulates usage counters from SSE chunks. Providers
// report usage in the final data event; earlier events update the model
// name only.
type StreamExtractor struct {
	tokens Tokens
	buffer string
}

func NewStreamExtractor(model string) *StreamExtractor {
	return &StreamExtractor{tokens: Tokens{Model: model}}
}

func (s *StreamExtractor) Process(chunk []byte) {
	s.buffer += string(chunk)
	lines := strings.Split(s.buffer, "\n")
	for _, line := range lines[:len(lines)-1] {
		// The space after the field name is optional in SSE.
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			continue
		}
		var event struct {
			Model string `json:"model"`
			Usage *struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.Model != "" {
			s.tokens.Model = event.Model
		}
		if event.Usage != nil {
			s.tokens.Prompt = event.Usage.PromptTokens
			s.tokens.Output = event.Usage.CompletionTokens
		}
	}
	s.buffer = lines[len(lines)-1]
}

func (s *StreamExtractor) Tokens() Tokens {
	return s.tokens
}
