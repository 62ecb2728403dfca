// Package feed carries board change notifications between processes and
// into the websocket hub. Events only invalidate snapshots; nothing in this
// package mutates board state.
package feed

import (
	"context"
	"sync"

	"github.com/amterp/kanflow/internal/util"
)

// Reason says what produced an event.
type Reason string

const (
	ReasonMoved    Reason = "moved"
	ReasonCreated  Reason = "created"
	ReasonRefresh  Reason = "refresh"
	ReasonExternal Reason = "external"

	// Local only: an optimistic move was applied to the cache, or undone
	ReasonPending    Reason = "pending"
	ReasonRolledBack Reason = "rolled_back"
)

// Event announces that a board changed.
type Event struct {
	BoardID  string   `json:"board_id"`
	Origin   string   `json:"origin"` // Process that made the change
	ItemIDs  []string `json:"item_ids,omitempty"`
	Reason   Reason   `json:"reason"`
	AtMillis int64    `json:"at_millis"`
}

// Subscriber receives board change events.
type Subscriber interface {
	OnBoardChange(ev Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ev Event)

func (f SubscriberFunc) OnBoardChange(ev Event) { f(ev) }

// Publisher announces changes made by this process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus fans events out to local subscribers. Publishing on a Bus delivers
// in-process only.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a subscriber.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Unsubscribe removes a subscriber. sub must be comparable; a
// SubscriberFunc can be subscribed but never removed.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Dispatch delivers an event to every subscriber synchronously.
func (b *Bus) Dispatch(ev Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.OnBoardChange(ev)
	}
}

func (b *Bus) Publish(_ context.Context, ev Event) error {
	if ev.AtMillis == 0 {
		ev.AtMillis = util.NowMillis()
	}
	b.Dispatch(ev)
	return nil
}
