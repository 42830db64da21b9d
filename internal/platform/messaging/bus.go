package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	contractsv1 "milestonepay/contracts/gen/events/v1"
)

const (
	busModule             = "internal/platform/messaging"
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Bus is the in-process broker used when no RabbitMQ URL is configured. It
// routes like the RabbitMQ exchange: each consumer group bound to a topic
// owns one bounded queue, and consumers in the same group compete for it.
//
// Publish only returns nil once every bound queue has accepted the event, so
// a caller such as the outbox relay keeps the event pending on error. A
// handler that fails is retried once before the event is dropped.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[string]*groupQueue
	logger *slog.Logger

	queueSize      int
	publishTimeout time.Duration
}

type groupQueue struct {
	name      string
	events    chan contractsv1.Envelope
	consumers int
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics:         make(map[string]map[string]*groupQueue),
		logger:         logger,
		queueSize:      defaultQueueSize,
		publishTimeout: defaultPublishTimeout,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	queues := b.bound(topic)
	if len(queues) == 0 {
		b.logger.Debug("event has no bound consumer group",
			"event", "bus_publish_unrouted",
			"module", busModule,
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()
	for _, queue := range queues {
		select {
		case queue.events <- event:
		case <-ctx.Done():
			b.logger.Warn("consumer group queue did not accept event",
				"event", "bus_publish_blocked",
				"module", busModule,
				"layer", "platform",
				"topic", topic,
				"queue", queue.name,
				"event_id", event.EventID,
				"error", ctx.Err().Error(),
			)
			return fmt.Errorf("publish %s to %s: %w", topic, queue.name, ctx.Err())
		}
	}

	b.logger.Debug("event published",
		"event", "bus_publish",
		"module", busModule,
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"queues", len(queues),
	)
	return nil
}

// Subscribe adds a consumer to the consumerGroup queue for topic. The
// consumer leaves when ctx is done; the queue goes away with its last consumer.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	topic = strings.TrimSpace(topic)
	consumerGroup = strings.TrimSpace(consumerGroup)
	if topic == "" || consumerGroup == "" {
		return errors.New("subscribe requires a topic and a consumer group")
	}
	if handler == nil {
		return errors.New("subscribe requires a handler")
	}

	queue := b.join(topic, consumerGroup)
	go func() {
		defer b.leave(topic, consumerGroup)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-queue.events:
				b.deliver(ctx, topic, queue.name, event, handler)
			}
		}
	}()
	return nil
}

func (b *Bus) deliver(
	ctx context.Context,
	topic string,
	queueName string,
	event contractsv1.Envelope,
	handler func(context.Context, contractsv1.Envelope) error,
) {
	err := handler(ctx, event)
	if err == nil {
		return
	}
	b.logger.Warn("consumer handler failed, redelivering once",
		"event", "bus_consume_retry",
		"module", busModule,
		"layer", "platform",
		"topic", topic,
		"queue", queueName,
		"event_id", event.EventID,
		"error", err.Error(),
	)
	if ctx.Err() != nil {
		return
	}
	if err := handler(ctx, event); err != nil {
		b.logger.Error("consumer handler failed on redelivery, dropping event",
			"event", "bus_consume_failed",
			"module", busModule,
			"layer", "platform",
			"topic", topic,
			"queue", queueName,
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
	}
}

func (b *Bus) bound(topic string) []*groupQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups := b.topics[topic]
	queues := make([]*groupQueue, 0, len(groups))
	for _, queue := range groups {
		queues = append(queues, queue)
	}
	return queues
}

func (b *Bus) join(topic string, consumerGroup string) *groupQueue {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups, ok := b.topics[topic]
	if !ok {
		groups = make(map[string]*groupQueue)
		b.topics[topic] = groups
	}
	queue, ok := groups[consumerGroup]
	if !ok {
		size := b.queueSize
		if size <= 0 {
			size = defaultQueueSize
		}
		queue = &groupQueue{
			name:   consumerGroup + "." + topic,
			events: make(chan contractsv1.Envelope, size),
		}
		groups[consumerGroup] = queue
	}
	queue.consumers++
	return queue
}

func (b *Bus) leave(topic string, consumerGroup string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups := b.topics[topic]
	queue, ok := groups[consumerGroup]
	if !ok {
		return
	}
	queue.consumers--
	if queue.consumers > 0 {
		return
	}
	delete(groups, consumerGroup)
	if len(groups) == 0 {
		delete(b.topics, topic)
	}
	if pending := len(queue.events); pending > 0 {
		b.logger.Warn("consumer group queue closed with undelivered events",
			"event", "bus_queue_abandoned",
			"module", busModule,
			"layer", "platform",
			"queue", queue.name,
			"pending", pending,
		)
	}
}
