// Package wizard holds the per-session state of the four-step inquiry flow.
//
// The flow is linear: Identify -> Guide -> Chat -> Summary. State is plain data
// and is not safe for concurrent use; callers serialize access per session.
package wizard

import (
	"errors"
	"strings"
	"time"

	"github.com/peaklee4u/inquirytutor/internal/domain"
)

// Step is the page counter.
type Step int

const (
	StepIdentify Step = iota + 1
	StepGuide
	StepChat
	StepSummary
)

// ErrMissingIdentity is returned when the student number or name is blank.
var ErrMissingIdentity = errors.New("student number and name are required")

// Clamp forces s into the valid step range.
func (s Step) Clamp() Step {
	switch {
	case s < StepIdentify:
		return StepIdentify
	case s > StepSummary:
		return StepSummary
	default:
		return s
	}
}

// String returns the lower-case step name.
func (s Step) String() string {
	switch s {
	case StepIdentify:
		return "identify"
	case StepGuide:
		return "guide"
	case StepChat:
		return "chat"
	case StepSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// NoticeLevel grades a flash notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a one-shot message shown on the next render.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// Exchange is the most recent user/assistant pair.
type Exchange struct {
	User      domain.Content `json:"user"`
	Assistant string         `json:"assistant"`
}

// State is everything a session remembers between requests.
type State struct {
	Step          Step             `json:"step"`
	StudentNumber string           `json:"number"`
	StudentName   string           `json:"name"`
	Messages      []domain.Message `json:"messages"`
	Recent        *Exchange        `json:"recent,omitempty"`
	Summary       string           `json:"summary,omitempty"`
	Saved         bool             `json:"saved"`
	TranscriptID  int64            `json:"transcript_id,omitempty"`

	notices []Notice
}

// New returns a state positioned on the first step.
func New() *State {
	return &State{Step: StepIdentify}
}

// CurrentStep returns the clamped step, initialising an unset counter.
func (s *State) CurrentStep() Step {
	s.Step = s.Step.Clamp()
	return s.Step
}

// HasIdentity reports whether both identifying fields are set.
func (s *State) HasIdentity() bool {
	return s.StudentNumber != "" && s.StudentName != ""
}

// Identify records the student and advances to the guide page.
func (s *State) Identify(number, name string) error {
	number = strings.TrimSpace(number)
	name = strings.TrimSpace(name)
	// Keep what was typed so the form can be re-rendered.
	s.StudentNumber = number
	s.StudentName = name
	if number == "" || name == "" {
		return ErrMissingIdentity
	}
	s.Step = StepGuide
	return nil
}

// Next advances one step.
func (s *State) Next() error {
	switch s.CurrentStep() {
	case StepIdentify:
		if !s.HasIdentity() {
			return ErrMissingIdentity
		}
		s.Step = StepGuide
	case StepGuide:
		s.Step = StepChat
	case StepChat:
		s.Step = StepSummary
		s.clearSummary()
	}
	return nil
}

// Prev goes back one step. Leaving the summary page discards the summary.
func (s *State) Prev() {
	switch s.CurrentStep() {
	case StepGuide:
		s.Step = StepIdentify
	case StepChat:
		s.Step = StepGuide
	case StepSummary:
		s.Step = StepChat
		s.clearSummary()
	}
}

// Reset wipes the session back to a fresh first step.
func (s *State) Reset() {
	*s = State{Step: StepIdentify}
}

// RecordExchange appends a successful user/assistant round.
func (s *State) RecordExchange(user domain.Message, reply string) {
	s.Messages = append(s.Messages, user, domain.AssistantMessage(reply))
	s.Recent = &Exchange{User: user.Content, Assistant: reply}
}

// History returns a copy of the accumulated conversation.
func (s *State) History() []domain.Message {
	out := make([]domain.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// NeedsSummary reports whether the summary page still has to generate one.
func (s *State) NeedsSummary() bool {
	return s.Step == StepSummary && s.Summary == ""
}

// SetSummary stores the generated summary.
func (s *State) SetSummary(text string) {
	s.Summary = text
}

// MarkSaved records a successful transcript write.
func (s *State) MarkSaved(id int64) {
	s.Saved = true
	s.TranscriptID = id
}

// Transcript assembles the durable record: the conversation followed by the
// summary as a final assistant message.
func (s *State) Transcript(now time.Time) *domain.Transcript {
	msgs := s.History()
	msgs = append(msgs, domain.AssistantMessage(s.Summary))
	return &domain.Transcript{
		StudentNumber: s.StudentNumber,
		StudentName:   s.StudentName,
		Messages:      msgs,
		CreatedAt:     now,
	}
}

// AddNotice queues a flash notice.
func (s *State) AddNotice(level NoticeLevel, text string) {
	s.notices = append(s.notices, Notice{Level: level, Text: text})
}

// TakeNotices returns and clears queued notices.
func (s *State) TakeNotices() []Notice {
	n := s.notices
	s.notices = nil
	return n
}

func (s *State) clearSummary() {
	s.Summary = ""
	s.Saved = false
	s.TranscriptID = 0
}
