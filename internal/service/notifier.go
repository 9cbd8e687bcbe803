package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scan-service/internal/domain/scan"
)

// Notifier is the operator-facing notification sink. Implementations must
// not block.
type Notifier interface {
	Notify(kind scan.NotificationKind, title, description string)
}

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(kind scan.NotificationKind, title, description string) {
	ev := n.log.Info()
	if kind == scan.NotifyError {
		ev = n.log.Warn()
	}
	ev.Str("kind", string(kind)).Str("description", description).Msg(title)
}

// NotificationLog keeps the most recent notifications for operators polling
// the API.
type NotificationLog struct {
	mu    sync.Mutex
	limit int
	items []scan.Notification
}

func NewNotificationLog(limit int) *NotificationLog {
	if limit <= 0 {
		limit = 1
	}
	return &NotificationLog{limit: limit}
}

func (l *NotificationLog) Notify(kind scan.NotificationKind, title, description string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, scan.Notification{
		Kind:        kind,
		Title:       title,
		Description: description,
		At:          time.Now(),
	})
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append(l.items[:0], l.items[over:]...)
	}
}

// Recent returns notifications newest first.
func (l *NotificationLog) Recent() []scan.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]scan.Notification, len(l.items))
	for i, n := range l.items {
		out[len(l.items)-1-i] = n
	}
	return out
}

type MultiNotifier []Notifier

func (m MultiNotifier) Notify(kind scan.NotificationKind, title, description string) {
	for _, n := range m {
		notifySafely(n, kind, title, description)
	}
}

// notifySafely delivers a notification, swallowing any panic from the sink.
func notifySafely(n Notifier, kind scan.NotificationKind, title, description string) {
	if n == nil {
		return
	}
	defer func() { _ = recover() }()
	n.Notify(kind, title, description)
}
