// Package notify carries user-visible connection notifications
// ("connected", "reconnecting", "connection error") out of the realtime client.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a single user-facing message.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Persistent  bool      `json:"persistent"` // Stays visible until the user acts
	Time        time.Time `json:"time"`
}

// New builds a notification stamped with a fresh ID and the current time.
func New(level Level, title, description string) Notification {
	return Notification{
		ID:          uuid.New(),
		Level:       level,
		Title:       title,
		Description: description,
		Time:        time.Now(),
	}
}

// Notifier delivers notifications. Implementations must not block for long:
// the realtime client calls Notify from its dispatch loop.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Multi fans a notification out to several notifiers in order.
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

type multi []Notifier

func (m multi) Notify(n Notification) {
	for _, nt := range m {
		nt.Notify(n)
	}
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs n at a level matching its severity.
func (l *LogNotifier) Notify(n Notification) {
	attrs := []any{
		"title", n.Title,
		"description", n.Description,
		"persistent", n.Persistent,
	}
	switch n.Level {
	case LevelError:
		l.logger.Error("notification", attrs...)
	case LevelWarning:
		l.logger.Warn("notification", attrs...)
	default:
		l.logger.Info("notification", attrs...)
	}
}

// Recorder keeps every notification in memory. Used by the health endpoint
// to show the most recent connection notice, and by tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewRecorder keeps at most limit notifications (0 = unlimited).
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Notify stores n, evicting the oldest entry when over the limit.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if r.limit > 0 && len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
}

// All returns a copy of the stored notifications, oldest first.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
