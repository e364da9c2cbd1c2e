package session

import (
	"context"
	"log/slog"
	"sync"
)

// Level grades a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// Notification is a transient, user-facing message about one operation.
type Notification struct {
	Level   Level
	Op      string
	Path    string
	Message string
	Err     error
}

// Notifier receives notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier writes notifications to l.
func NewLogNotifier(l *slog.Logger) Notifier {
	if l == nil {
		l = slog.Default()
	}
	return &logNotifier{logger: l}
}

func (n *logNotifier) Notify(note Notification) {
	level := slog.LevelInfo
	switch note.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	attrs := []any{"op", note.Op, "path", note.Path}
	if note.Err != nil {
		attrs = append(attrs, "error", note.Err)
	}
	n.logger.Log(context.Background(), level, note.Message, attrs...)
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

// Notifications returns a copy of what was recorded.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// Reset drops recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notes = nil
	r.mu.Unlock()
}
