package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType tags a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// ImageURL points at an image, usually a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Part is one element of a multi-part message.
type Part struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image part for the given URL.
func ImagePart(url string) Part {
	return Part{Type: PartImage, ImageURL: &ImageURL{URL: url}}
}

// Content is either plain text or an ordered list of parts.
// It serializes to a bare JSON string when Parts is empty.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent wraps plain text.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent wraps a list of parts.
func PartsContent(parts ...Part) Content {
	return Content{Parts: parts}
}

// IsMultipart reports whether the content carries parts.
func (c Content) IsMultipart() bool {
	return len(c.Parts) > 0
}

// IsEmpty reports whether there is nothing to send.
func (c Content) IsEmpty() bool {
	return !c.IsMultipart() && strings.TrimSpace(c.Text) == ""
}

// HasImage reports whether any part is an image.
func (c Content) HasImage() bool {
	for _, p := range c.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// PlainText flattens the content to text. Images render as "[image]".
func (c Content) PlainText() string {
	if !c.IsMultipart() {
		return c.Text
	}
	pieces := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Type {
		case PartText:
			pieces = append(pieces, p.Text)
		case PartImage:
			pieces = append(pieces, "[image]")
		}
	}
	return strings.Join(pieces, "\n")
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultipart() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode text content: %w", err)
		}
		*c = Content{Text: s}
	case '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decode content parts: %w", err)
		}
		*c = Content{Parts: parts}
	default:
		return fmt.Errorf("unsupported content encoding %q", data[0])
	}
	return nil
}

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// SystemMessage builds a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: TextContent(text)}
}

// UserMessage builds a user message.
func UserMessage(content Content) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

// MarshalConversation encodes messages without HTML escaping so that
// non-ASCII text and markup remain readable in storage.
func MarshalConversation(messages []Message) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if messages == nil {
		messages = []Message{}
	}
	if err := enc.Encode(messages); err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// UnmarshalConversation decodes what MarshalConversation produced.
func UnmarshalConversation(data string) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return messages, nil
}
