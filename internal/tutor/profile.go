// Package tutor assembles chat requests for the inquiry assistants.
package tutor

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/peaklee4u/inquirytutor/internal/extract"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// DocumentMode says where extracted document text goes.
type DocumentMode int

const (
	// DocumentAsContext sends the document as an extra system message.
	DocumentAsContext DocumentMode = iota
	// DocumentInline prepends the document to the student's message.
	DocumentInline
)

// Profile describes one assistant flavour.
type Profile struct {
	Key           string
	Title         string
	Intro         string
	GuideTitle    string
	GuideSteps    []string
	ChatTitle     string
	SummaryTitle  string
	AssistantName string

	SystemPrompt  string
	SummaryPrompt string
	// DocumentPreamble introduces document text sent as context.
	DocumentPreamble string

	DocumentMode  DocumentMode
	DocumentKinds []extract.Kind
	AllowImage    bool
	// ImageNeedsText rejects an image sent without text or a document.
	ImageNeedsText bool
}

// AcceptsDocument reports whether kind may be uploaded.
func (p Profile) AcceptsDocument(kind extract.Kind) bool {
	for _, k := range p.DocumentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// AcceptList renders the HTML accept attribute for the document input.
func (p Profile) AcceptList() string {
	exts := make([]string, 0, len(p.DocumentKinds))
	for _, k := range p.DocumentKinds {
		exts = append(exts, "."+string(k))
	}
	return strings.Join(exts, ",")
}

var builtin = map[string]func() Profile{
	"design":   designProfile,
	"analysis": analysisProfile,
}

// Profiles lists the built-in profile keys.
func Profiles() []string {
	keys := make([]string, 0, len(builtin))
	for k := range builtin {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LookupProfile returns a built-in profile by key.
func LookupProfile(key string) (Profile, error) {
	build, ok := builtin[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown assistant profile %q (known: %s)", key, strings.Join(Profiles(), ", "))
	}
	return build(), nil
}

// WithPromptFiles replaces the system and summary prompts with file contents.
// Empty paths keep the embedded defaults.
func (p Profile) WithPromptFiles(systemPath, summaryPath string) (Profile, error) {
	if systemPath != "" {
		b, err := os.ReadFile(systemPath)
		if err != nil {
			return p, fmt.Errorf("read system prompt: %w", err)
		}
		p.SystemPrompt = strings.TrimSpace(string(b))
	}
	if summaryPath != "" {
		b, err := os.ReadFile(summaryPath)
		if err != nil {
			return p, fmt.Errorf("read summary prompt: %w", err)
		}
		p.SummaryPrompt = strings.TrimSpace(string(b))
	}
	return p, nil
}

func mustPrompt(name string) string {
	b, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		panic("tutor: missing embedded prompt " + name)
	}
	return strings.TrimSpace(string(b))
}

func designProfile() Profile {
	return Profile{
		Key:        "design",
		Title:      "Inquiry Design Helper",
		Intro:      "Enter your student number and name, then press Next.",
		GuideTitle: "How to use the design helper",
		GuideSteps: []string{
			"First, tell the assistant the hypothesis and procedure you wrote.",
			"The assistant will point out what you did well and what to improve. Ask about anything in its feedback.",
			"When you have no more questions, tell the assistant \"I have asked everything\".",
			"The assistant will then ask for your own thinking. Think it through and answer; you may still ask questions.",
			"When the conversation is complete the assistant will tell you to press Next. Press it only then.",
		},
		ChatTitle:        "Design your inquiry",
		SummaryTitle:     "The helper's suggestions",
		AssistantName:    "Design helper",
		SystemPrompt:     mustPrompt("design_system.txt"),
		SummaryPrompt:    mustPrompt("design_summary.txt"),
		DocumentPreamble: "Content of the PDF document the student referred to:",
		DocumentMode:     DocumentAsContext,
		DocumentKinds:    []extract.Kind{extract.KindPDF},
		AllowImage:       true,
	}
}

func analysisProfile() Profile {
	return Profile{
		Key:        "analysis",
		Title:      "Inquiry Analysis Helper",
		Intro:      "Enter your student number and name, then press Next.",
		GuideTitle: "How to use the analysis helper",
		GuideSteps: []string{
			"First, share your experiment results: data tables, graphs and conclusions.",
			"The assistant analyses them and tells you what went well and what to strengthen.",
			"Ask the assistant anything you are curious about.",
			"When you are done asking, say \"I have asked everything\".",
			"The assistant will ask you questions that help you write a better conclusion or report.",
			"When the conversation is complete the assistant will tell you to press Next. Press it only then.",
		},
		ChatTitle:        "Analyse your results",
		SummaryTitle:     "The helper's suggestions",
		AssistantName:    "Analysis helper",
		SystemPrompt:     mustPrompt("analysis_system.txt"),
		SummaryPrompt:    mustPrompt("analysis_summary.txt"),
		DocumentPreamble: "[Uploaded document]",
		DocumentMode:     DocumentInline,
		DocumentKinds:    []extract.Kind{extract.KindText, extract.KindPDF, extract.KindDOCX},
		AllowImage:       true,
		ImageNeedsText:   true,
	}
}
