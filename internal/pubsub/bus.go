// Package pubsub is the fan-out bus between room actors and connected
// clients. Topics are cheap strings ("room/CODE", "user/ID"); every topic
// stamps its events with a monotonically increasing sequence number so
// subscribers can dedup and detect gaps. Delivery is best-effort: a
// subscriber that stops draining its channel is dropped, and a client that
// was offline resyncs from a snapshot instead of replaying events.
package pubsub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/pkg/types"
)

func RoomTopic(code string) string   { return "room/" + code }
func UserTopic(userID string) string { return "user/" + userID }

type topic struct {
	seq  uint64
	subs map[string]chan types.Event
}

// Subscription is one live attachment to a topic. Unsubscribing takes the
// subscription back rather than a (topic, id) pair so that a stale
// teardown can never detach a newer subscription registered under the
// same id.
type Subscription struct {
	C <-chan types.Event

	topic string
	id    string
	ch    chan types.Event
}

type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		topics: make(map[string]*topic),
		log:    log,
	}
}

// Subscribe registers subID on a topic and returns the subscription that
// events will arrive on. Subscribing twice with the same subID replaces
// the previous subscription.
func (b *Bus) Subscribe(name, subID string, buffer int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topics[name]
	if t == nil {
		t = &topic{subs: make(map[string]chan types.Event)}
		b.topics[name] = t
	}
	if old, ok := t.subs[subID]; ok {
		close(old)
	}
	ch := make(chan types.Event, buffer)
	t.subs[subID] = ch
	return &Subscription{C: ch, topic: name, id: subID, ch: ch}
}

// Unsubscribe detaches sub and reports whether it was still the active
// subscription for its id. It is a no-op when a newer subscription has
// replaced it or the topic was dropped.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topics[sub.topic]
	if t == nil {
		return false
	}
	if cur, ok := t.subs[sub.id]; ok && cur == sub.ch {
		close(cur)
		delete(t.subs, sub.id)
		return true
	}
	return false
}

// DropTopic closes every subscriber and forgets the topic's sequence.
// Called when the thing the topic describes (a room) is torn down; topics
// are never dropped just because they are momentarily empty, since that
// would reset the sequence counter under a reconnecting client.
func (b *Bus) DropTopic(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topics[name]
	if t == nil {
		return
	}
	for _, ch := range t.subs {
		close(ch)
	}
	delete(b.topics, name)
}

// Publish marshals payload and fans it out to every subscriber of the
// topic. Slow subscribers are dropped rather than blocking the publisher.
func (b *Bus) Publish(name, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("marshal event payload",
			zap.String("topic", name),
			zap.String("type", eventType),
			zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topics[name]
	if t == nil {
		// Nobody listening; sequence still advances so a later
		// subscriber sees a gap and resyncs.
		t = &topic{subs: make(map[string]chan types.Event)}
		b.topics[name] = t
	}
	t.seq++
	evt := types.Event{Type: eventType, Sequence: t.seq, Payload: raw}

	for id, ch := range t.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(t.subs, id)
			b.log.Warn("dropped slow subscriber",
				zap.String("topic", name),
				zap.String("subscriber", id))
		}
	}
}
