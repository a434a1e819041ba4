package resolver

import "github.com/brainamp/planner-engine/internal/domain/course"

// ══════════════════════════════════════════════════════════════════════════════
// CHAT COMPLETION WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for a bare JSON object.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the body POSTed to {base}/chat/completions.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse is the subset of the completion response we read.
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// APIErrorDTO is the error body returned by compatible servers.
type APIErrorDTO struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// classifyInput is serialized as the user message.
type classifyInput struct {
	Phrase     string             `json:"phrase"`
	Candidates []course.Candidate `json:"candidates"`
}
