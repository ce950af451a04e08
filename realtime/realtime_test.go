package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-remotestate/restro-qr/models"
)

func TestBrokerDeliversPerRestaurant(t *testing.T) {
	b := NewBroker(4)
	first, second := uuid.New(), uuid.New()

	sub := b.Subscribe(first)
	other := b.Subscribe(second)
	defer b.Unsubscribe(sub)
	defer b.Unsubscribe(other)

	order := models.Order{ID: uuid.New(), RestaurantID: first, OrderNumber: "20261017-001", Status: models.OrderStatusPending}
	require.NoError(t, b.Publish(context.Background(), OrderEvent(EventOrderCreated, order)))

	select {
	case e := <-sub.C:
		assert.Equal(t, EventOrderCreated, e.Type)
		assert.Equal(t, order.ID, e.OrderID)
		assert.Equal(t, "20261017-001", e.OrderNumber)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case e := <-other.C:
		t.Fatalf("unexpected event for another restaurant: %+v", e)
	default:
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1)
	restaurantID := uuid.New()
	sub := b.Subscribe(restaurantID)

	b.Deliver(Event{Type: EventOrderCreated, RestaurantID: restaurantID, OrderNumber: "1"})
	b.Deliver(Event{Type: EventOrderCreated, RestaurantID: restaurantID, OrderNumber: "2"})

	e := <-sub.C
	assert.Equal(t, "1", e.OrderNumber)
	select {
	case e := <-sub.C:
		t.Fatalf("expected the second event to be dropped, got %+v", e)
	default:
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(1)
	restaurantID := uuid.New()
	sub := b.Subscribe(restaurantID)
	assert.Equal(t, 1, b.Subscribers(restaurantID))

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers(restaurantID))

	b.Close()
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestPackagePublish(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("bus down")}
	SetPublisher(rec)
	defer SetPublisher(nil)

	Publish(context.Background(), Event{Type: EventPaymentFailed, RestaurantID: uuid.New()})
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventPaymentFailed, rec.events[0].Type)
}

func TestKafkaMessageRoundTrip(t *testing.T) {
	b := NewBroker(1)
	restaurantID := uuid.New()
	sub := b.Subscribe(restaurantID)
	bus := &KafkaBus{broker: b}

	in := Event{
		Type:          EventPaymentCompleted,
		RestaurantID:  restaurantID,
		OrderID:       uuid.New(),
		OrderNumber:   "20261017-004",
		Status:        models.OrderStatusInProgress,
		PaymentStatus: models.PaymentStatusCompleted,
		At:            time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	}
	msg, err := encodeEvent(in)
	require.NoError(t, err)
	assert.Equal(t, restaurantID.String(), string(msg.Key))

	require.NoError(t, bus.handle(msg))
	out := <-sub.C
	assert.Equal(t, in, out)
}

func TestKafkaRejectsMalformedMessages(t *testing.T) {
	bus := &KafkaBus{broker: NewBroker(1)}
	assert.Error(t, bus.handle(kafka.Message{Value: []byte("not json")}))
	assert.Error(t, bus.handle(kafka.Message{Value: []byte(`{"type":"order.created"}`)}))
}

type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written []kafka.Message
	closed  bool
}

func (w *blockingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *blockingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *blockingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func TestKafkaPublishDoesNotWaitForTheBroker(t *testing.T) {
	writer := &blockingWriter{release: make(chan struct{})}
	bus := newKafkaBus(writer, nil, NewBroker(1), 2)
	restaurantID := uuid.New()

	start := time.Now()
	// the producer holds the first event while the broker is stuck
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventOrderCreated, RestaurantID: restaurantID}))
	require.Eventually(t, func() bool { return len(bus.outbox) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventOrderCreated, RestaurantID: restaurantID}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventOrderCreated, RestaurantID: restaurantID}))
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: EventOrderCreated, RestaurantID: restaurantID}), ErrOutboxFull)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(writer.release)
	require.NoError(t, bus.Close())
	assert.Equal(t, 3, writer.count())
	assert.True(t, writer.closed)
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: EventOrderCreated, RestaurantID: restaurantID}), ErrBusClosed)
}
