// Package notify delivers user-facing result messages such as "stock
// received" toasts. Notifiers are passed to the components that need them.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	EntityID    string    `json:"entity_id,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// Notifier is fire-and-forget: implementations report their own failures
// and never block the caller on delivery errors.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	fields := []zap.Field{
		zap.String("title", n.Title),
		zap.String("description", n.Description),
		zap.String("severity", string(n.Severity)),
	}
	if n.EntityID != "" {
		fields = append(fields, zap.String("entity_id", n.EntityID))
	}

	switch n.Severity {
	case SeverityError:
		l.logger.Error("notification", fields...)
	case SeverityWarning:
		l.logger.Warn("notification", fields...)
	default:
		l.logger.Info("notification", fields...)
	}
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Notification{}, false
	}
	return r.sent[len(r.sent)-1], true
}
