package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/peaklee4u/inquirytutor/internal/chatlog"
	"github.com/peaklee4u/inquirytutor/internal/domain"
	"github.com/peaklee4u/inquirytutor/internal/session"
	"github.com/peaklee4u/inquirytutor/internal/tutor"
	"github.com/peaklee4u/inquirytutor/internal/wizard"
)

const (
	msgMissingIdentity = "Please enter both your student number and name."
	msgSummaryFallback = "Feedback could not be generated."
	msgSummaryFailed   = "An error occurred while generating feedback: "
	msgSaveFailed      = "Saving failed. Please try again."
	msgSaved           = "Your conversation has been saved."
)

type navData struct {
	Prev bool
	Next bool
}

type pageData struct {
	Profile      tutor.Profile
	Step         int
	StepName     string
	Number       string
	Name         string
	Notices      []wizard.Notice
	Recent       *wizard.Exchange
	Messages     []domain.Message
	Summary      string
	Saved        bool
	TranscriptID int64
	Nav          navData
}

// Page renders the page for the session's current step.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		Error(w, http.StatusInternalServerError, "no session")
		return
	}

	var data pageData
	sess.With(func(st *wizard.State) {
		if st.CurrentStep() == wizard.StepSummary {
			h.prepareSummary(r.Context(), sess.ID, st)
		}
		data = h.buildPage(st)
	})

	var buf bytes.Buffer
	if err := h.pages.Render(&buf, data.StepName, data); err != nil {
		slog.Error("Failed to render page", "session_id", sess.ID, "step", data.StepName, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("Failed to write page", "session_id", sess.ID, "error", err)
	}
}

func (h *Handler) buildPage(st *wizard.State) pageData {
	step := st.CurrentStep()
	return pageData{
		Profile:      h.tutor.Profile(),
		Step:         int(step),
		StepName:     step.String(),
		Number:       st.StudentNumber,
		Name:         st.StudentName,
		Notices:      st.TakeNotices(),
		Recent:       st.Recent,
		Messages:     st.History(),
		Summary:      st.Summary,
		Saved:        st.Saved,
		TranscriptID: st.TranscriptID,
		Nav: navData{
			Prev: step > wizard.StepIdentify,
			Next: step < wizard.StepSummary,
		},
	}
}

// prepareSummary generates the summary once per visit to the summary page
// and saves the transcript until a save succeeds.
func (h *Handler) prepareSummary(ctx context.Context, sessionID string, st *wizard.State) {
	if st.NeedsSummary() {
		summary, err := h.tutor.Summarize(ctx, st.History())
		if err != nil {
			st.AddNotice(wizard.NoticeError, msgSummaryFailed+err.Error())
			summary = msgSummaryFallback
		} else {
			h.log.Log(chatlog.Event{
				StudentNumber: st.StudentNumber,
				SessionID:     sessionID,
				Channel:       chatlog.ChannelSummary,
				Direction:     chatlog.DirectionInbound,
				EventType:     chatlog.EventSummary,
				ContentRaw:    summary,
			})
		}
		st.SetSummary(summary)
	}

	if st.Saved {
		return
	}

	t := st.Transcript(h.now())
	id, err := h.repo.SaveTranscript(ctx, t)
	if err != nil {
		slog.Error("Failed to save transcript", "session_id", sessionID, "error", err)
		st.AddNotice(wizard.NoticeError, msgSaveFailed)
		return
	}
	st.MarkSaved(id)
	st.AddNotice(wizard.NoticeSuccess, msgSaved)

	slog.Info("Transcript saved", "session_id", sessionID, "transcript_id", id, "messages", len(t.Messages))
	h.log.Log(chatlog.Event{
		StudentNumber: st.StudentNumber,
		SessionID:     sessionID,
		Channel:       chatlog.ChannelSummary,
		Direction:     chatlog.DirectionOutbound,
		EventType:     chatlog.EventTranscriptSaved,
		Meta:          map[string]any{"transcript_id": id, "messages": len(t.Messages)},
	})
}

// Identify records the student number and name from the first page.
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *wizard.State) {
		if err := st.Identify(r.PostFormValue("number"), r.PostFormValue("name")); err != nil {
			st.AddNotice(wizard.NoticeError, msgMissingIdentity)
		}
	})
}

// Next advances the wizard.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *wizard.State) {
		if err := st.Next(); errors.Is(err, wizard.ErrMissingIdentity) {
			st.AddNotice(wizard.NoticeError, msgMissingIdentity)
		}
	})
}

// Prev moves the wizard back one step.
func (h *Handler) Prev(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *wizard.State) {
		st.Prev()
	})
}

// Restart clears the session and returns to the first page.
func (h *Handler) Restart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *wizard.State) {
		st.Reset()
	})
}

// mutate applies fn to the session state and redirects back to the page.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(st *wizard.State)) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		Error(w, http.StatusInternalServerError, "no session")
		return
	}

	var from, to wizard.Step
	sess.With(func(st *wizard.State) {
		from = st.CurrentStep()
		fn(st)
		to = st.CurrentStep()
	})
	if from != to {
		slog.Info("Wizard step changed",
			"session_id", sess.ID,
			"from", from.String(),
			"to", to.String(),
			"request_id", chiMiddleware.GetReqID(r.Context()))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type sessionView struct {
	SessionID    string           `json:"session_id"`
	Profile      string           `json:"profile"`
	Step         int              `json:"step"`
	StepName     string           `json:"step_name"`
	Number       string           `json:"number"`
	Name         string           `json:"name"`
	Messages     []domain.Message `json:"messages"`
	Recent       *wizard.Exchange `json:"recent,omitempty"`
	Summary      string           `json:"summary,omitempty"`
	Saved        bool             `json:"saved"`
	TranscriptID int64            `json:"transcript_id,omitempty"`
}

// Session returns a JSON view of the wizard state.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		Error(w, http.StatusInternalServerError, "no session")
		return
	}

	var view sessionView
	sess.With(func(st *wizard.State) {
		step := st.CurrentStep()
		view = sessionView{
			SessionID:    sess.ID,
			Profile:      h.tutor.Profile().Key,
			Step:         int(step),
			StepName:     step.String(),
			Number:       st.StudentNumber,
			Name:         st.StudentName,
			Messages:     st.History(),
			Recent:       st.Recent,
			Summary:      st.Summary,
			Saved:        st.Saved,
			TranscriptID: st.TranscriptID,
		}
	})
	JSON(w, http.StatusOK, view)
}
