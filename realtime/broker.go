package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/models"
)

type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventPaymentCompleted   EventType = "payment.completed"
	EventPaymentFailed      EventType = "payment.failed"
)

type Event struct {
	Type          EventType            `json:"type"`
	RestaurantID  uuid.UUID            `json:"restaurant_id"`
	OrderID       uuid.UUID            `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	At            time.Time            `json:"at"`
}

// OrderEvent snapshots an order into an event of the given type.
func OrderEvent(t EventType, o models.Order) Event {
	return Event{
		Type:          t,
		RestaurantID:  o.RestaurantID,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		At:            time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscription receives the events of one restaurant until it is
// unsubscribed, at which point C is closed.
type Subscription struct {
	RestaurantID uuid.UUID
	C            <-chan Event

	ch chan Event
}

// Broker fans events out to in-process subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (b *Broker) Subscribe(restaurantID uuid.UUID) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{RestaurantID: restaurantID, C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[restaurantID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[restaurantID] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.RestaurantID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.RestaurantID)
	}
	close(sub.ch)
}

// Subscribers returns how many subscriptions a restaurant currently has.
func (b *Broker) Subscribers(restaurantID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[restaurantID])
}

func (b *Broker) Publish(_ context.Context, e Event) error {
	b.Deliver(e)
	return nil
}

// Deliver hands e to every local subscriber of e.RestaurantID.
func (b *Broker) Deliver(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[e.RestaurantID] {
		select {
		case sub.ch <- e:
		default:
			logrus.WithFields(logrus.Fields{
				"restaurant_id": e.RestaurantID,
				"event":         e.Type,
				"order_id":      e.OrderID,
			}).Warn("dropping event for slow subscriber")
		}
	}
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
}

// Default is the process-wide broker live feeds subscribe to.
var Default = NewBroker(64)

var (
	publisherMu sync.RWMutex
	publisher   Publisher = Default
)

// SetPublisher installs the publisher used by Publish; nil restores Default.
func SetPublisher(p Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	if p == nil {
		p = Default
	}
	publisher = p
}

// Publish sends e through the installed publisher. Notification failures are
// logged and never fail the caller's request.
func Publish(ctx context.Context, e Event) {
	publisherMu.RLock()
	p := publisher
	publisherMu.RUnlock()

	if err := p.Publish(ctx, e); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event":    e.Type,
			"order_id": e.OrderID,
		}).Error("failed to publish event")
	}
}
