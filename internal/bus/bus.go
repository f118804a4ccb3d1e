// Package bus provides the in-process publish/subscribe fabric every agent
// communicates through. Delivery is best-effort, at-most-once, and local to
// the process — there is no cross-process or persisted delivery.
//
// Each subscription owns a private queue drained by a single goroutine, so a
// subscriber's handler runs serialized with respect to itself (the "single
// threaded handler loop" every agent relies on) while never blocking the
// publisher. A subscriber handler that panics is recovered and logged so one
// agent's crash cannot take down its peers or the publisher.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names every component in this system communicates over.
const (
	TopicEvents              Topic = "interview:events"
	TopicTick                Topic = "interview:tick"
	TopicStudentResponse     Topic = "interview:student_response"
	TopicQuestionAsked       Topic = "interview:question_asked"
	TopicTopicCompleted      Topic = "interview:topic_completed"
	TopicAgentObservation    Topic = "interview:agent_observation"
	TopicCoordinatorDirective Topic = "interview:coordinator_directive"
)

// Topic identifies one of the fixed bus channels.
type Topic string

// criticalTopics must never be dropped for being too slow to drain; all
// other topics use a bounded, drop-oldest mailbox.
var criticalTopics = map[Topic]bool{
	TopicCoordinatorDirective: true,
	TopicStudentResponse:      true,
}

// nonCriticalMailboxSize bounds the drop-oldest mailbox used for topics that
// tolerate best-effort delivery (ticks, observations, questions, lifecycle
// events). 64 comfortably outpaces one collection window's worth of chatter.
const nonCriticalMailboxSize = 64

// criticalMailboxSize is the backlog depth past which a critical
// subscription logs an error; critical messages are still queued past it.
const criticalMailboxSize = 4096

// Message is the envelope every subscriber receives. Payload is a tagged
// union value: subscribers type-switch on it to recover the concrete event
// struct (see payloads.go).
type Message struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

// Handler processes one message. It runs on the subscription's private
// goroutine, never concurrently with itself.
type Handler func(Message)

// Bus is a topic-indexed broadcast primitive.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]*subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]*subscription)}
}

// Subscription is a handle returned by Subscribe. Call Unsubscribe to stop
// receiving messages and release the subscription's goroutine.
type Subscription struct {
	bus *Bus
	sub *subscription
}

// Unsubscribe stops delivery to this subscription and drains its goroutine.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.sub)
	s.sub.close()
}

type subscription struct {
	id       string
	topic    Topic
	handler  Handler
	critical bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool
}

func newSubscription(topic Topic, handler Handler) *subscription {
	s := &subscription{
		id:       uuid.NewString(),
		topic:    topic,
		handler:  handler,
		critical: criticalTopics[topic],
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *subscription) maxQueue() int {
	if s.critical {
		return criticalMailboxSize
	}
	return nonCriticalMailboxSize
}

func (s *subscription) enqueue(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if max := s.maxQueue(); len(s.queue) >= max {
		if s.critical {
			// Critical topics are never dropped; a backlog this deep means
			// the subscriber is badly stalled, so log loudly and keep it.
			slog.Error("bus: critical mailbox backlog over limit", "topic", s.topic, "subscription", s.id, "depth", len(s.queue))
		} else {
			s.queue = s.queue[1:]
		}
	}
	s.queue = append(s.queue, msg)
	s.cond.Signal()
}

func (s *subscription) loop() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.dispatch(msg)
	}
}

// dispatch invokes the handler with crash isolation: a panicking handler is
// recovered and logged so the subscriber's peers and the publisher are
// unaffected. The subscription goes on to the next queued message; an owner
// that no longer trusts the agent's state can re-create and re-subscribe it
// — see the Restart methods in internal/supervisor.
func (s *subscription) dispatch(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: subscriber handler panicked", "topic", s.topic, "subscription", s.id, "panic", r)
		}
	}()
	s.handler(msg)
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Subscribe registers handler for delivery of every message published on
// topic from this point forward. Delivery order for any single publisher is
// preserved; there is no ordering guarantee across distinct publishers.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	sub := newSubscription(topic, handler)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return &Subscription{bus: b, sub: sub}
}

// Publish delivers payload to every current subscriber of topic. It never
// blocks on a subscriber's handler: each subscriber has its own mailbox and
// goroutine, so a slow or crashed subscriber cannot stall the publisher or
// other subscribers.
func (b *Bus) Publish(topic Topic, payload any) {
	msg := Message{Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.enqueue(msg)
	}
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[target.topic]
	for i, s := range subs {
		if s == target {
			b.subs[target.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount reports how many subscribers a topic currently has.
// Exported for tests and health diagnostics.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
