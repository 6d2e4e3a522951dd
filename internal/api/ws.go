package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/peaklee4u/inquirytutor/internal/chatlog"
	"github.com/peaklee4u/inquirytutor/internal/session"
	"github.com/peaklee4u/inquirytutor/internal/tutor"
	"github.com/peaklee4u/inquirytutor/internal/wizard"
)

// wsMessage is the frame format in both directions.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServeWS upgrades to a websocket carrying text chat for the session. It is
// only available while the session is on the chat step.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		Error(w, http.StatusInternalServerError, "no session")
		return
	}
	slog.Info("WebSocket connection request", "session_id", sess.ID, "ip", r.RemoteAddr)

	var step wizard.Step
	sess.With(func(st *wizard.State) { step = st.CurrentStep() })
	if step != wizard.StepChat {
		Error(w, http.StatusConflict, errNotChatting.Error())
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sess.ID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sess.ID)
		}
	}()

	h.readLoop(r.Context(), ws, sess)
	slog.Info("Chat websocket ended", "session_id", sess.ID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sess *session.Session) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", sess.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sess.ID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeFrame(ctx, ws, wsMessage{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "chat":
			reply, err := h.converse(ctx, sess, chatlog.ChannelWebSocket, tutor.Input{Text: msg.Content})
			if err != nil {
				h.writeFrame(ctx, ws, wsMessage{Type: "error", Error: wsErrorText(err)})
				continue
			}
			h.writeFrame(ctx, ws, wsMessage{Type: "reply", Content: reply})
		case "ping":
			h.writeFrame(ctx, ws, wsMessage{Type: "pong"})
		default:
			h.writeFrame(ctx, ws, wsMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func wsErrorText(err error) string {
	switch {
	case errors.Is(err, tutor.ErrEmptyInput):
		return msgEmptyInput
	case errors.Is(err, session.ErrRateLimited), errors.Is(err, errNotChatting):
		return err.Error()
	default:
		return msgReplyFailed + err.Error()
	}
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("Failed to encode websocket frame", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "type", msg.Type, "error", err)
	}
}
