package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peaklee4u/inquirytutor/internal/domain"
	"github.com/peaklee4u/inquirytutor/internal/extract"
	"github.com/peaklee4u/inquirytutor/internal/llm"
)

// ErrEmptyInput is returned when a submission has nothing the profile can
// send: no text, and no image the profile accepts on its own.
var ErrEmptyInput = errors.New("enter text or attach a file")

const (
	summaryHeader       = "The following is the conversation between the student and the assistant:"
	inlineStudentHeader = "[Student input]"
)

// Input is one chat submission.
type Input struct {
	Text     string
	Document *extract.Document
	Image    *extract.Image
}

// Turn is the outcome of a successful Reply.
type Turn struct {
	User  domain.Message
	Reply llm.Response
}

// Service builds requests for a profile and calls the model.
type Service struct {
	llm          llm.Client
	profile      Profile
	contextLimit int
	logger       *slog.Logger
}

// NewService creates a tutor service. contextLimit caps document text sent as
// context, in runes.
func NewService(client llm.Client, profile Profile, contextLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if contextLimit <= 0 {
		contextLimit = 1500
	}
	return &Service{llm: client, profile: profile, contextLimit: contextLimit, logger: logger}
}

// Profile returns the active profile.
func (s *Service) Profile() Profile {
	return s.profile
}

// Compose builds the user content for in. In context mode the document is
// returned separately as a system message.
func (s *Service) Compose(in Input) (domain.Content, *domain.Message, error) {
	text := strings.TrimSpace(in.Text)

	var docContext *domain.Message
	if in.Document != nil && s.profile.DocumentMode == DocumentAsContext {
		msg := domain.SystemMessage(s.profile.DocumentPreamble + "\n\n" + extract.Truncate(in.Document.Text, s.contextLimit))
		docContext = &msg
	}

	if in.Document != nil && s.profile.DocumentMode == DocumentInline {
		var b strings.Builder
		b.WriteString(s.profile.DocumentPreamble)
		b.WriteString("\n")
		b.WriteString(in.Document.Text)
		b.WriteString("\n")
		if text != "" {
			b.WriteString(inlineStudentHeader)
			b.WriteString("\n")
			b.WriteString(text)
		}
		text = b.String()
	}

	switch {
	case in.Image != nil && text == "" && s.profile.ImageNeedsText:
		return domain.Content{}, nil, ErrEmptyInput
	case in.Image != nil:
		var parts []domain.Part
		if text != "" {
			parts = append(parts, domain.TextPart(text))
		}
		parts = append(parts, domain.ImagePart(in.Image.DataURL()))
		return domain.PartsContent(parts...), docContext, nil
	case text != "":
		return domain.TextContent(text), docContext, nil
	default:
		return domain.Content{}, nil, ErrEmptyInput
	}
}

// Reply sends history plus the new submission and returns the assistant turn.
// history is not modified; the caller records the exchange on success.
func (s *Service) Reply(ctx context.Context, history []domain.Message, in Input) (*Turn, error) {
	content, docContext, err := s.Compose(in)
	if err != nil {
		return nil, err
	}

	user := domain.UserMessage(content)
	messages := make([]domain.Message, 0, len(history)+3)
	messages = append(messages, domain.SystemMessage(s.profile.SystemPrompt))
	if docContext != nil {
		messages = append(messages, *docContext)
	}
	messages = append(messages, history...)
	messages = append(messages, user)

	resp, err := s.llm.Generate(ctx, messages)
	if err != nil {
		s.logger.Error("Chat completion failed", "profile", s.profile.Key, "error", err)
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	s.logger.Info("Chat completion",
		"profile", s.profile.Key,
		"model", resp.Model,
		"history", len(history),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
	)
	return &Turn{User: user, Reply: resp}, nil
}

// Summarize asks the model to summarise the whole conversation.
func (s *Service) Summarize(ctx context.Context, history []domain.Message) (string, error) {
	prompt := SummaryPrompt(summaryHeader, history, s.profile.SummaryPrompt)

	resp, err := s.llm.Generate(ctx, []domain.Message{domain.SystemMessage(prompt)})
	if err != nil {
		s.logger.Error("Summary generation failed", "profile", s.profile.Key, "error", err)
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return resp.Content, nil
}

// SummaryPrompt renders history as "role: text" lines between header and instructions.
func SummaryPrompt(header string, history []domain.Message, instructions string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, m := range history {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content.PlainText())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(instructions)
	return b.String()
}
