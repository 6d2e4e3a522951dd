// Package domain contains core domain types for the inquiry tutor.
package domain

import (
	"strings"
	"time"
)

// Transcript is the durable record of one finished session.
type Transcript struct {
	ID            int64     `json:"id"`
	StudentNumber string    `json:"number"`
	StudentName   string    `json:"name"`
	Messages      []Message `json:"chat"`
	CreatedAt     time.Time `json:"time"`
}

// HasIdentity reports whether both identifying fields are set.
func (t *Transcript) HasIdentity() bool {
	return strings.TrimSpace(t.StudentNumber) != "" && strings.TrimSpace(t.StudentName) != ""
}

// Summary returns the final assistant message, which holds the generated summary.
func (t *Transcript) Summary() string {
	if len(t.Messages) == 0 {
		return ""
	}
	last := t.Messages[len(t.Messages)-1]
	if last.Role != RoleAssistant {
		return ""
	}
	return last.Content.PlainText()
}
