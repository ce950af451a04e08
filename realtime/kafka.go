package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/config"
)

const (
	outboxSize        = 1024
	kafkaWriteTimeout = 10 * time.Second
)

var (
	ErrBusClosed  = errors.New("event bus is closed")
	ErrOutboxFull = errors.New("event outbox is full")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBus carries events between instances. Publish only queues the event
// for the producer goroutine; every instance, the publishing one included,
// receives the event back through Run and hands it to its local broker.
type KafkaBus struct {
	writer messageWriter
	reader *kafka.Reader
	broker *Broker

	outbox chan kafka.Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewKafkaBus builds a bus for cfg and starts its producer. Without a
// configured group id each instance joins its own group so that all of them
// see every event.
func NewKafkaBus(cfg config.KafkaConfig, broker *Broker) *KafkaBus {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "restro-live-" + uuid.NewString()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           kafkaWriteTimeout,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})
	return newKafkaBus(writer, reader, broker, outboxSize)
}

func newKafkaBus(writer messageWriter, reader *kafka.Reader, broker *Broker, size int) *KafkaBus {
	ctx, cancel := context.WithCancel(context.Background())
	k := &KafkaBus{
		writer: writer,
		reader: reader,
		broker: broker,
		outbox: make(chan kafka.Message, size),
		ctx:    ctx,
		cancel: cancel,
	}
	k.wg.Add(1)
	go k.produce()
	return k
}

// Publish queues e without waiting for the broker. It fails only when the bus
// is closed or the outbox is full.
func (k *KafkaBus) Publish(_ context.Context, e Event) error {
	msg, err := encodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case <-k.ctx.Done():
		return ErrBusClosed
	default:
	}
	select {
	case k.outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (k *KafkaBus) produce() {
	defer k.wg.Done()
	for {
		select {
		case msg := <-k.outbox:
			k.write(msg)
		case <-k.ctx.Done():
			for {
				select {
				case msg := <-k.outbox:
					k.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (k *KafkaBus) write(msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		logrus.WithError(err).WithField("restaurant_id", string(msg.Key)).Error("failed to write event")
	}
}

// Run consumes the topic until ctx is cancelled.
func (k *KafkaBus) Run(ctx context.Context) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := k.handle(msg); err != nil {
			logrus.WithError(err).WithField("offset", msg.Offset).Warn("skipping malformed event")
		}
	}
}

func (k *KafkaBus) handle(msg kafka.Message) error {
	e, err := decodeEvent(msg)
	if err != nil {
		return err
	}
	k.broker.Deliver(e)
	return nil
}

// Close flushes queued events and closes the writer and reader.
func (k *KafkaBus) Close() error {
	var result error
	k.once.Do(func() {
		k.cancel()
		k.wg.Wait()
		if err := k.writer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("kafka writer: %w", err))
		}
		if k.reader == nil {
			return
		}
		if err := k.reader.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("kafka reader: %w", err))
		}
	})
	return result
}

// Events of one restaurant share a key and therefore a partition, which keeps
// them in order.
func encodeEvent(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.RestaurantID.String()),
		Value: value,
	}, nil
}

func decodeEvent(msg kafka.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.RestaurantID == uuid.Nil {
		return Event{}, errors.New("event without restaurant")
	}
	return e, nil
}
