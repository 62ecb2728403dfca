package service

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/util"
)

// NoticeKind says what a notice is about.
type NoticeKind string

const (
	// NoticeCelebrate fires when an item enters a completion group.
	NoticeCelebrate NoticeKind = "celebrate"
	// NoticeMoveFailed fires when a move could not be persisted and was
	// rolled back. The user may retry it.
	NoticeMoveFailed NoticeKind = "move_failed"
)

// Notice is a user-facing notification. Notices never block or fail a move.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	BoardID    string     `json:"board_id"`
	ItemID     string     `json:"item_id"`
	ItemTitle  string     `json:"item_title,omitempty"`
	GroupID    string     `json:"group_id,omitempty"`
	GroupTitle string     `json:"group_title,omitempty"`
	GroupKind  string     `json:"group_kind,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Message    string     `json:"message"`
	Retryable  bool       `json:"retryable,omitempty"`
	AtMillis   int64      `json:"at_millis"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to the log.
type LogNotifier struct {
	Logger *log.Logger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	entry := logger.WithFields(log.Fields{
		"board": n.BoardID,
		"item":  n.ItemID,
		"kind":  n.Kind,
	})
	if n.Kind == NoticeMoveFailed {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

const asyncQueueSize = 64

// AsyncNotifier delivers notices to its targets on a background goroutine.
// Notify never blocks; when the queue is full the notice is dropped and
// logged.
type AsyncNotifier struct {
	targets []Notifier
	logger  *log.Logger
	queue   chan Notice
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

// NewAsyncNotifier starts a notifier fanning out to targets.
func NewAsyncNotifier(logger *log.Logger, targets ...Notifier) *AsyncNotifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	n := &AsyncNotifier{
		targets: targets,
		logger:  logger,
		queue:   make(chan Notice, asyncQueueSize),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Add registers another target. Targets added later only see later notices.
func (a *AsyncNotifier) Add(target Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.targets = append(a.targets, target)
}

func (a *AsyncNotifier) Notify(n Notice) {
	if n.AtMillis == 0 {
		n.AtMillis = util.NowMillis()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- n:
	default:
		a.logger.WithFields(log.Fields{"kind": n.Kind, "item": n.ItemID}).Warn("notification queue full, dropping notice")
	}
}

// Close stops accepting notices and waits for queued ones to be delivered.
func (a *AsyncNotifier) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncNotifier) run() {
	defer close(a.done)
	for n := range a.queue {
		a.mu.RLock()
		targets := make([]Notifier, len(a.targets))
		copy(targets, a.targets)
		a.mu.RUnlock()

		for _, t := range targets {
			a.deliver(t, n)
		}
	}
}

func (a *AsyncNotifier) deliver(t Notifier, n Notice) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", r).Error("notifier target panicked")
		}
	}()
	t.Notify(n)
}
