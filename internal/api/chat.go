package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/peaklee4u/inquirytutor/internal/chatlog"
	"github.com/peaklee4u/inquirytutor/internal/extract"
	"github.com/peaklee4u/inquirytutor/internal/session"
	"github.com/peaklee4u/inquirytutor/internal/tutor"
	"github.com/peaklee4u/inquirytutor/internal/wizard"
)

// errNotChatting is returned when a chat arrives outside the chat step.
var errNotChatting = errors.New("chat is only available on the chat step")

const (
	msgEmptyInput      = "Please enter text or attach a file."
	msgUnsupportedFile = "Unsupported file type: "
	msgReplyFailed     = "The assistant could not respond: "
	msgFormTooLarge    = "The upload is too large."
)

type chatReply struct {
	Reply string `json:"reply"`
}

// Chat handles a multipart chat submission from the chat page. Clients that
// accept JSON get the reply or an error status instead of a redirect.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		Error(w, http.StatusInternalServerError, "no session")
		return
	}
	wantsJSON := strings.Contains(r.Header.Get("Accept"), "application/json")

	// Two attachments plus form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		slog.Warn("Failed to parse chat form", "session_id", sess.ID, "error", err)
		h.respondChat(w, r, sess, wantsJSON, http.StatusRequestEntityTooLarge, "", wizard.NoticeWarning, msgFormTooLarge)
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				slog.Debug("Failed to remove multipart temp files", "error", err)
			}
		}()
	}

	in := tutor.Input{Text: r.FormValue("message")}
	var notices []wizard.Notice
	in.Document, notices = h.readDocument(r, notices)
	in.Image, notices = h.readImage(r, notices)

	reply, err := h.converse(r.Context(), sess, chatlog.ChannelHTTP, in)

	status := http.StatusOK
	var level wizard.NoticeLevel
	var text string
	switch {
	case err == nil:
	case errors.Is(err, tutor.ErrEmptyInput):
		status, level, text = http.StatusBadRequest, wizard.NoticeWarning, msgEmptyInput
	case errors.Is(err, session.ErrRateLimited):
		status, level, text = http.StatusTooManyRequests, wizard.NoticeWarning, session.ErrRateLimited.Error()
	case errors.Is(err, errNotChatting):
		status, level, text = http.StatusConflict, wizard.NoticeWarning, errNotChatting.Error()
	default:
		status, level, text = http.StatusBadGateway, wizard.NoticeError, msgReplyFailed+err.Error()
	}

	sess.With(func(st *wizard.State) {
		for _, n := range notices {
			st.AddNotice(n.Level, n.Text)
		}
	})
	h.respondChat(w, r, sess, wantsJSON, status, reply, level, text)
}

func (h *Handler) respondChat(w http.ResponseWriter, r *http.Request, sess *session.Session, wantsJSON bool, status int, reply string, level wizard.NoticeLevel, text string) {
	if wantsJSON {
		if text != "" {
			Error(w, status, text)
			return
		}
		JSON(w, http.StatusOK, chatReply{Reply: reply})
		return
	}
	if text != "" {
		sess.With(func(st *wizard.State) { st.AddNotice(level, text) })
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) readDocument(r *http.Request, notices []wizard.Notice) (*extract.Document, []wizard.Notice) {
	f, hdr, ok := formFile(r, "document")
	if !ok {
		return nil, notices
	}
	defer closeFile(f)

	profile := h.tutor.Profile()
	kind, known := extract.KindOf(hdr.Filename, hdr.Header.Get("Content-Type"))
	if !known || !profile.AcceptsDocument(kind) {
		return nil, append(notices, wizard.Notice{Level: wizard.NoticeWarning, Text: msgUnsupportedFile + hdr.Filename})
	}

	doc, err := extract.ReadDocument(hdr.Filename, hdr.Header.Get("Content-Type"), f, h.maxUpload)
	if err != nil {
		slog.Warn("Failed to read document", "file", hdr.Filename, "error", err)
		return nil, append(notices, wizard.Notice{Level: wizard.NoticeWarning, Text: fmt.Sprintf("Could not read %s: %v", hdr.Filename, err)})
	}
	return doc, append(notices, wizard.Notice{Level: wizard.NoticeSuccess, Text: "Loaded " + hdr.Filename + "."})
}

func (h *Handler) readImage(r *http.Request, notices []wizard.Notice) (*extract.Image, []wizard.Notice) {
	f, hdr, ok := formFile(r, "image")
	if !ok {
		return nil, notices
	}
	defer closeFile(f)

	if !h.tutor.Profile().AllowImage {
		return nil, append(notices, wizard.Notice{Level: wizard.NoticeWarning, Text: msgUnsupportedFile + hdr.Filename})
	}
	img, err := extract.ReadImage(hdr.Filename, f, h.maxUpload)
	if err != nil {
		slog.Warn("Failed to read image", "file", hdr.Filename, "error", err)
		return nil, append(notices, wizard.Notice{Level: wizard.NoticeWarning, Text: fmt.Sprintf("Could not read %s: %v", hdr.Filename, err)})
	}
	return img, notices
}

func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	if r.MultipartForm == nil {
		return nil, nil, false
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			slog.Warn("Failed to open uploaded file", "field", field, "error", err)
		}
		return nil, nil, false
	}
	if hdr.Size == 0 {
		closeFile(f)
		return nil, nil, false
	}
	return f, hdr, true
}

func closeFile(f multipart.File) {
	if err := f.Close(); err != nil {
		slog.Debug("Failed to close uploaded file", "error", err)
	}
}

// converse runs one chat turn for sess and records it on success. The
// session stays locked for the duration so turns are applied in order.
func (h *Handler) converse(ctx context.Context, sess *session.Session, channel string, in tutor.Input) (string, error) {
	var (
		reply string
		err   error
	)
	sess.With(func(st *wizard.State) {
		if st.CurrentStep() != wizard.StepChat {
			err = errNotChatting
			return
		}
		if _, _, composeErr := h.tutor.Compose(in); composeErr != nil {
			err = composeErr
			return
		}
		if !sess.AllowChat() {
			err = session.ErrRateLimited
			return
		}

		requestID := chiMiddleware.GetReqID(ctx)
		turn, replyErr := h.tutor.Reply(ctx, st.History(), in)
		if replyErr != nil {
			err = replyErr
			h.log.Log(chatlog.Event{
				StudentNumber: st.StudentNumber,
				SessionID:     sess.ID,
				Channel:       channel,
				Direction:     chatlog.DirectionInbound,
				EventType:     chatlog.EventChatError,
				ContentRaw:    replyErr.Error(),
				Meta:          map[string]any{"request_id": requestID},
			})
			return
		}

		st.RecordExchange(turn.User, turn.Reply.Content)
		reply = turn.Reply.Content

		h.log.Log(chatlog.Event{
			StudentNumber: st.StudentNumber,
			SessionID:     sess.ID,
			Channel:       channel,
			Direction:     chatlog.DirectionOutbound,
			EventType:     chatlog.EventUserMessage,
			ContentRaw:    turn.User.Content.PlainText(),
			Meta: map[string]any{
				"request_id": requestID,
				"document":   documentName(in.Document),
				"image":      in.Image != nil,
			},
		})
		h.log.Log(chatlog.Event{
			StudentNumber: st.StudentNumber,
			SessionID:     sess.ID,
			Channel:       channel,
			Direction:     chatlog.DirectionInbound,
			EventType:     chatlog.EventAssistantMessage,
			ContentRaw:    reply,
			Meta: map[string]any{
				"request_id":        requestID,
				"model":             turn.Reply.Model,
				"prompt_tokens":     turn.Reply.PromptTokens,
				"completion_tokens": turn.Reply.CompletionTokens,
			},
		})
	})
	return reply, err
}

func documentName(d *extract.Document) string {
	if d == nil {
		return ""
	}
	return d.Name
}
