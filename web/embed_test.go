package web

import (
	"bytes"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testProfile struct {
	Title string
	Intro string
}

type testNotice struct {
	Level string
	Text  string
}

type identifyData struct {
	Profile  testProfile
	Step     int
	StepName string
	Notices  []testNotice
	Number   string
	Name     string
}

func TestLoadPagesRendersIdentify(t *testing.T) {
	pages, err := LoadPages()
	if err != nil {
		t.Fatalf("LoadPages failed: %v", err)
	}

	var buf bytes.Buffer
	err = pages.Render(&buf, "identify", identifyData{
		Profile:  testProfile{Title: "Design helper", Intro: "Enter your details."},
		Step:     1,
		StepName: "identify",
		Notices:  []testNotice{{Level: "error", Text: "Name <required>"}},
		Number:   "10101",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"<title>Design helper</title>",
		`class="notice notice-error"`,
		"Name &lt;required&gt;",
		`value="10101"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in rendered page", want)
		}
	}

	if err := pages.Render(&buf, "missing", nil); err == nil {
		t.Error("expected error for unknown page")
	}
}

func TestImageURLOnlyTrustsDataImages(t *testing.T) {
	fn := funcs["imageURL"].(func(string) template.URL)
	if got := fn("data:image/png;base64,AAAA"); got != "data:image/png;base64,AAAA" {
		t.Errorf("unexpected data URL %q", got)
	}
	if got := fn("javascript:alert(1)"); got != "" {
		t.Errorf("expected untrusted URL to be dropped, got %q", got)
	}
}

func TestStaticHandler(t *testing.T) {
	h := StaticHandler()

	tests := []struct {
		path string
		want int
	}{
		{"/static/style.css", http.StatusOK},
		{"/static/chat.js", http.StatusOK},
		{"/static/", http.StatusNotFound},
		{"/static/missing.css", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}
