package openai

import (
	"encoding/json"
	"strings"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// FirstText returns the trimmed content of the first choice, or ""
// when the response carried none.
func (r *ChatResponse) FirstText() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Choices[0].Message.Content)
}

type APIErrorEnvelope struct {
	Error APIErrorDetail `json:"error"`
}

type APIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    any    `json:"code"`
}

type APIError struct {
	StatusCode int
	Envelope   APIErrorEnvelope
	Body       []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Envelope.Error.Message != "" {
		if e.Envelope.Error.Type != "" {
			return e.Envelope.Error.Type + ": " + e.Envelope.Error.Message
		}
		return e.Envelope.Error.Message
	}
	return string(e.Body)
}

func ParseAPIErrorEnvelope(body []byte) (APIErrorEnvelope, bool) {
	var envelope APIErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return APIErrorEnvelope{}, false
	}
	if envelope.Error.Type == "" && envelope.Error.Message == "" {
		return APIErrorEnvelope{}, false
	}
	return envelope, true
}
