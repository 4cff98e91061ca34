// Package notify delivers user-facing notices, such as API failures, to
// whoever presents them: a log, a terminal or an admin notice queue.
package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a message meant for a human
type Notice struct {
	Level   Level
	Title   string
	Message string
}

func (n Notice) String() string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + " " + n.Message
}

// Notifier receives notices. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Discard drops every notice
var Discard Notifier = NotifierFunc(func(context.Context, Notice) {})

// LogNotifier writes notices through logrus
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notice) {
	entry := l.log.WithField("notice", n.Title)
	switch n.Level {
	case LevelError:
		entry.Error(n.Message)
	case LevelWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

// Recorder queues notices until they are drained, like an admin notice area
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(ctx context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Drain returns the queued notices and empties the queue
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

// Multi fans a notice out to every notifier in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
