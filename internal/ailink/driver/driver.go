package driver

import (
	"context"

	"github.com/goalsmith/goalsmith/internal/ailink/content"
)

// Driver sends completion requests to a language model provider.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
}

// Moderator classifies text against the provider's content policy.
type Moderator interface {
	Moderate(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error)
}

// ResponseFormat specifies the expected response format.
type ResponseFormat struct {
	Type       string      `json:"type"` // "text", "json_object", "json_schema"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is a named schema for structured output.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model          string
	Messages       []content.Message
	ResponseFormat *ResponseFormat
	Temperature    *float64
	MaxTokens      *int
	Metadata       map[string]string
}

// Response is a provider-agnostic completion response.
type Response struct {
	ID           string
	Model        string
	Content      []content.ContentBlock
	FinishReason string
	// Refusal is set when the model declined to answer in the requested format.
	Refusal string
	Usage   *Usage
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, block := range r.Content {
		if block.Type == content.ContentTypeText {
			out += block.Text
		}
	}
	return out
}

// ModerationRequest asks the provider to classify Input.
type ModerationRequest struct {
	Model    string
	Input    string
	Metadata map[string]string
}

// ModerationResult is the verdict for one input.
type ModerationResult struct {
	Flagged        bool
	Categories     map[string]bool
	CategoryScores map[string]float64
}

// ModerationResponse carries one result per input.
type ModerationResponse struct {
	ID      string
	Model   string
	Results []ModerationResult
}
