package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies what happened upstream.
type EventType string

const (
	EventEnrollmentCreated   EventType = "enrollment.created"
	EventEnrollmentCompleted EventType = "enrollment.completed"
	EventEnrollmentUpdated   EventType = "enrollment.updated"
	EventCourseStatusChanged EventType = "course.status_changed"
)

// Event is delivered to dashboard subscribers.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	CourseID   string    `json:"course_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// adminScope is the subscriber scope shared by all admin streams. Per-user
// scopes use the user ID directly.
const adminScope = "__admin__"

type subscriber struct {
	id    uint64
	scope string
	ch    chan Event
}

// Broker is a process-local pub/sub hub for dashboard notifications.
//
// Publishing never blocks: subscriber channels are buffered and a full
// channel drops the event for that subscriber only. Delivery is fire and
// forget; the publisher's state change has already committed.
type Broker struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[string]map[uint64]*subscriber
	bufSize int
	logger  *zap.Logger
}

// NewBroker builds a broker whose subscriber channels hold bufSize events.
func NewBroker(bufSize int, logger *zap.Logger) *Broker {
	if bufSize <= 0 {
		bufSize = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:    make(map[string]map[uint64]*subscriber),
		bufSize: bufSize,
		logger:  logger,
	}
}

// SubscribeAdmin registers for admin-scope events.
func (b *Broker) SubscribeAdmin() (<-chan Event, func()) {
	return b.subscribe(adminScope)
}

// SubscribeUser registers for events addressed to a single user.
func (b *Broker) SubscribeUser(userID string) (<-chan Event, func()) {
	return b.subscribe(userID)
}

// PublishAdmin fans an event out to all admin subscribers.
func (b *Broker) PublishAdmin(evt Event) {
	b.publish(adminScope, evt)
}

// PublishUser fans an event out to subscribers of one user's scope.
func (b *Broker) PublishUser(userID string, evt Event) {
	if userID == "" {
		return
	}
	evt.UserID = userID
	b.publish(userID, evt)
}

func (b *Broker) subscribe(scope string) (<-chan Event, func()) {
	sub := &subscriber{
		scope: scope,
		ch:    make(chan Event, b.bufSize),
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	if b.subs[scope] == nil {
		b.subs[scope] = make(map[uint64]*subscriber)
	}
	b.subs[scope][sub.id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if scoped, ok := b.subs[scope]; ok {
				delete(scoped, sub.id)
				if len(scoped) == 0 {
					delete(b.subs, scope)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (b *Broker) publish(scope string, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	// Sends happen under the lock so cancel cannot close a channel
	// mid-delivery. They never block: a full channel drops the event.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[scope] {
		select {
		case sub.ch <- evt:
		default:
			b.logger.Sugar().Debugw("dropping event for slow subscriber", "scope", scope, "type", evt.Type)
		}
	}
}
