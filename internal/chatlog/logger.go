// Package chatlog writes chat traffic as newline-delimited JSON for later review.
package chatlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Channels and directions recorded in events.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
	ChannelSummary   = "summary"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Event types.
const (
	EventUserMessage      = "chat_user_message"
	EventAssistantMessage = "chat_assistant_message"
	EventChatError        = "chat_error"
	EventSummary          = "summary_generated"
	EventTranscriptSaved  = "transcript_saved"
)

const anonymous = "anonymous"

// Config controls where events are written.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one logged line.
type Event struct {
	Timestamp     string         `json:"ts"`
	StudentNumber string         `json:"student_number,omitempty"`
	SessionID     string         `json:"session_id"`
	Channel       string         `json:"channel"`
	Direction     string         `json:"direction"`
	EventType     string         `json:"event_type"`
	ContentRaw    string         `json:"content_raw,omitempty"`
	Content       string         `json:"content,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// Logger accepts events without blocking the caller.
type Logger interface {
	Log(Event)
	Close() error
}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

type fileLogger struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}

	files  map[string]*os.File
	global *os.File
}

// New starts an asynchronous NDJSON logger. A disabled config yields Noop.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Noop(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log directory: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		f, err := openAppend(cfg.GlobalPath)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log enqueues e. Events are dropped when the queue is full or the logger is closed.
func (l *fileLogger) Log(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Content == "" && e.ContentRaw != "" {
		e.Content = cleanForReadability(e.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"session_id", e.SessionID,
			"event_type", e.EventType)
	}
}

// Close drains pending events and closes all files.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done

	var firstErr error
	for path, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
	}
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close global log: %w", err)
		}
	}
	return firstErr
}

func (l *fileLogger) run() {
	defer close(l.done)
	for e := range l.queue {
		line, err := json.Marshal(e)
		if err != nil {
			l.logger.Warn("Failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			if err := l.writeSession(e, line); err != nil {
				l.logger.Warn("Failed to write conversation log", "session_id", e.SessionID, "error", err)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("Failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileLogger) writeSession(e Event, line []byte) error {
	path := SessionPath(l.cfg.Dir, e.StudentNumber, e.SessionID)
	f, ok := l.files[path]
	if !ok {
		var err error
		f, err = openAppend(path)
		if err != nil {
			return err
		}
		l.files[path] = f
	}
	_, err := f.Write(line)
	return err
}

// SessionPath returns dir/<student>/<session>.ndjson with unsafe characters replaced.
func SessionPath(dir, studentNumber, sessionID string) string {
	student := safeSegment(studentNumber)
	if student == "" {
		student = anonymous
	}
	sess := safeSegment(sessionID)
	if sess == "" {
		sess = anonymous
	}
	return filepath.Join(dir, student, sess+".ndjson")
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

var (
	ansiPattern    = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	dataURLPattern = regexp.MustCompile(`data:image/[a-z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// cleanForReadability strips escape sequences and inline image payloads and
// normalises line breaks.
func cleanForReadability(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = ansiPattern.ReplaceAllString(s, "")
	s = dataURLPattern.ReplaceAllString(s, "[image]")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
