// Package llm wraps the external chat-completion service.
package llm

import (
	"context"
	"errors"

	"github.com/peaklee4u/inquirytutor/internal/domain"
)

// ErrEmptyResponse is returned when the service answers without any choice.
var ErrEmptyResponse = errors.New("chat completion returned no choices")

// Response is a single completion.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client performs one blocking chat-completion exchange.
type Client interface {
	Generate(ctx context.Context, messages []domain.Message) (Response, error)
}
