// Package eventbus is an in-process topic broker. Each websocket handler
// subscribes to its "game_event" topic; nothing in this module publishes to
// that topic, so /ws pushes are driven by the handler's own 500ms poll of
// the applied log index.
package eventbus

import "sync"

// Message is a published notification with an opaque payload.
type Message struct {
	Topic   string
	Payload any
}

// Subscriber receives messages for one or more topics. The broker does not
// block on slow subscribers.
type Subscriber interface {
	Send(msg *Message)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(msg *Message)

func (f SubscriberFunc) Send(msg *Message) { f(msg) }

// Broker is an in-memory topic broker: fan-out on publish, no ordering
// guarantee across subscribers of the same topic.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
}

// New creates a new in-memory broker.
func New() *Broker {
	return &Broker{topics: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds a subscriber to the given topic, creating it if needed.
func (b *Broker) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[Subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
}

// Unsubscribe removes a subscriber from a topic.
func (b *Broker) Unsubscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs := b.topics[topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Publish delivers msg to every current subscriber of its topic. Delivery
// happens synchronously on the caller's goroutine per subscriber — callers
// that need isolation from slow subscribers should use SubscriberFunc that
// itself hands off to a buffered channel.
func (b *Broker) Publish(msg *Message) {
	if msg == nil {
		return
	}
	b.mu.RLock()
	subs := b.topics[msg.Topic]
	subList := make([]Subscriber, 0, len(subs))
	for sub := range subs {
		subList = append(subList, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subList {
		sub.Send(msg)
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
