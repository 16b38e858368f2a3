// Package eventbus is an in-process publish/subscribe bus for typed
// envelopes, grounded on GoCodeAlone-modular's MemoryEventBus (per-topic
// subscriber map guarded by a mutex, buffered per-subscriber channel,
// drop-on-full delivery). Here the "drop" outcome is generalized into the
// DISCONNECT notification the spec requires instead of a silent counter.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EnvelopeType enumerates the event types the core emits.
type EnvelopeType string

const (
	Applied              EnvelopeType = "APPLIED"
	SeatBooked            EnvelopeType = "SEAT_BOOKED"
	SeatReleased          EnvelopeType = "SEAT_RELEASED"
	StudentAutoEnrolled   EnvelopeType = "STUDENT_AUTO_ENROLLED"
	WaitlistUpdated       EnvelopeType = "WAITLIST_UPDATED"
	BookingStatusChanged  EnvelopeType = "BOOKING_STATUS_CHANGED"
	Disconnect            EnvelopeType = "DISCONNECT"
)

// Envelope is the wire shape published on every topic.
type Envelope struct {
	Type      EnvelopeType   `json:"type"`
	CourseID  string         `json:"courseId"`
	StudentID string         `json:"studentId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const subscriberQueueSize = 64

// Subscription is a cancellable stream of envelopes, replacing the source's
// callback-style "onSeatBooked" subscriptions (spec.md §9).
type Subscription struct {
	ID     string
	Topic  string
	C      <-chan Envelope
	bus    *Bus
	cancel func()
}

// Cancel stops delivery to this subscription and releases its queue.
func (s *Subscription) Cancel() {
	s.cancel()
}

type subscriber struct {
	id       string
	ch       chan Envelope
	done     chan struct{}
	cancelled bool
}

// Bus is the Event Bus component (§4.6). The connected-subscriber registry
// is internal state guarded by topicMu, never exposed directly (spec.md
// §9's "global mutable state" note).
type Bus struct {
	topicMu sync.Mutex
	topics  map[string]map[string]*subscriber
}

func New() *Bus {
	return &Bus{topics: make(map[string]map[string]*subscriber)}
}

func courseTopic(courseID string) string  { return "course:" + courseID }
func studentTopic(studentID string) string { return "student:" + studentID }

// Subscribe registers interest in a topic and returns a cancellable stream.
// Deliveries on a topic are FIFO with respect to Publish calls on that same
// topic, because Publish iterates the locked subscriber list synchronously
// before returning.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.topicMu.Lock()
	defer b.topicMu.Unlock()

	id := uuid.NewString()
	sub := &subscriber{
		id:   id,
		// One slot beyond subscriberQueueSize is kept free for the
		// DISCONNECT notification sent when the queue fills up.
		ch:   make(chan Envelope, subscriberQueueSize+1),
		done: make(chan struct{}),
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*subscriber)
	}
	b.topics[topic][id] = sub

	return &Subscription{
		ID:    id,
		Topic: topic,
		C:     sub.ch,
		bus:   b,
		cancel: func() {
			b.unsubscribe(topic, id)
		},
	}
}

// SubscribeCourse subscribes to a course's topic.
func (b *Bus) SubscribeCourse(courseID string) *Subscription {
	return b.Subscribe(courseTopic(courseID))
}

// SubscribeStudent subscribes to a student's personal topic. Requires the
// caller to have authenticated (enforced by internal/api/ws, not here).
func (b *Bus) SubscribeStudent(studentID string) *Subscription {
	return b.Subscribe(studentTopic(studentID))
}

func (b *Bus) unsubscribe(topic, id string) {
	b.topicMu.Lock()
	defer b.topicMu.Unlock()
	subs, ok := b.topics[topic]
	if !ok {
		return
	}
	if sub, ok := subs[id]; ok {
		if !sub.cancelled {
			close(sub.done)
			sub.cancelled = true
		}
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// Publish delivers env to every subscriber of topic, in the order they were
// published. A subscriber whose bounded queue is full is dropped and sent a
// DISCONNECT notification instead of env; the remote view is expected to
// re-request a full snapshot on reconnection.
func (b *Bus) Publish(topic string, env Envelope) {
	b.topicMu.Lock()
	subs := make([]*subscriber, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.topicMu.Unlock()

	for _, sub := range subs {
		if len(sub.ch) >= subscriberQueueSize {
			b.dropSubscriber(topic, sub, env)
			continue
		}
		select {
		case sub.ch <- env:
		case <-sub.done:
		default:
			b.dropSubscriber(topic, sub, env)
		}
	}
}

func (b *Bus) dropSubscriber(topic string, sub *subscriber, cause Envelope) {
	log.Warn().Str("topic", topic).Str("subscriber", sub.id).Msg("eventbus: subscriber queue full, disconnecting")
	disconnect := Envelope{
		Type:      Disconnect,
		CourseID:  cause.CourseID,
		StudentID: cause.StudentID,
		Payload:   map[string]any{"reason": "backpressure"},
		Timestamp: time.Now(),
	}
	select {
	case sub.ch <- disconnect:
	default:
	}
	b.unsubscribe(topic, sub.id)
}

// PublishCourse publishes env on the course's topic.
func (b *Bus) PublishCourse(courseID string, env Envelope) {
	env.CourseID = courseID
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	b.Publish(courseTopic(courseID), env)
}

// PublishStudent publishes env on the student's personal topic.
func (b *Bus) PublishStudent(studentID string, env Envelope) {
	env.StudentID = studentID
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	b.Publish(studentTopic(studentID), env)
}
