package domain

import (
	"strings"
	"testing"
)

func TestMarshalConversationKeepsTextAndParts(t *testing.T) {
	msgs := []Message{
		UserMessage(TextContent("가설: 온도가 높을수록 <빠르다>")),
		UserMessage(PartsContent(TextPart("see photo"), ImagePart("data:image/png;base64,AAAA"))),
		AssistantMessage("ok"),
	}

	out, err := MarshalConversation(msgs)
	if err != nil {
		t.Fatalf("MarshalConversation failed: %v", err)
	}
	if !strings.Contains(out, "가설: 온도가 높을수록 <빠르다>") {
		t.Fatalf("expected unescaped text in %s", out)
	}
	if !strings.Contains(out, `"content":[{"type":"text","text":"see photo"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}]`) {
		t.Fatalf("unexpected multipart encoding: %s", out)
	}

	back, err := UnmarshalConversation(out)
	if err != nil {
		t.Fatalf("UnmarshalConversation failed: %v", err)
	}
	if len(back) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(back))
	}
	if !back[1].Content.HasImage() {
		t.Fatal("expected image part to survive decoding")
	}
	if back[2].Content.Text != "ok" || back[2].Role != RoleAssistant {
		t.Fatalf("unexpected last message: %+v", back[2])
	}
}

func TestMarshalConversationNil(t *testing.T) {
	out, err := MarshalConversation(nil)
	if err != nil {
		t.Fatalf("MarshalConversation failed: %v", err)
	}
	if out != "[]" {
		t.Fatalf("expected empty array, got %q", out)
	}
}

func TestContentPlainText(t *testing.T) {
	c := PartsContent(TextPart("hello"), ImagePart("data:image/jpeg;base64,xx"))
	if got := c.PlainText(); got != "hello\n[image]" {
		t.Fatalf("unexpected plain text: %q", got)
	}
	if TextContent("  ").IsEmpty() != true {
		t.Fatal("expected whitespace content to be empty")
	}
}

func TestTranscriptSummary(t *testing.T) {
	tr := &Transcript{
		StudentNumber: "10101",
		StudentName:   "Kim",
		Messages:      []Message{UserMessage(TextContent("q")), AssistantMessage("summary")},
	}
	if !tr.HasIdentity() {
		t.Fatal("expected identity")
	}
	if tr.Summary() != "summary" {
		t.Fatalf("unexpected summary %q", tr.Summary())
	}
}
