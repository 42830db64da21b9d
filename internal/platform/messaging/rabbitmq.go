package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	contractsv1 "milestonepay/contracts/gen/events/v1"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName    = "milestonepay.events"
	defaultPrefetch = 8
	publishTimeout  = 5 * time.Second
)

// RabbitMQ routes envelopes through a durable topic exchange keyed by event
// type. Each consumer group owns one durable queue per topic.
type RabbitMQ struct {
	conn   *amqp.Connection
	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	logger *slog.Logger
}

func NewRabbitMQ(url string, logger *slog.Logger) (*RabbitMQ, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &RabbitMQ{conn: conn, pubCh: ch, logger: logger}, nil
}

func declareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	err = r.pubCh.PublishWithContext(
		pubCtx,
		ExchangeName,
		topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Type:         event.EventType,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes with manual acks. A failed handler is requeued once;
// a failure on redelivery drops the message.
func (r *RabbitMQ) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return err
	}
	queueName := consumerGroup + "." + topic
	queue, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(queue.Name, topic, ExchangeName, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind queue %s: %w", queueName, err)
	}
	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, consumerGroup, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	r.logger.Info("rabbitmq consumer started",
		"event", "rabbitmq_consumer_started",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"queue", queue.Name,
	)

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, open := <-deliveries:
				if !open {
					return
				}
				r.deliver(ctx, topic, consumerGroup, msg, handler)
			}
		}
	}()
	return nil
}

func (r *RabbitMQ) deliver(
	ctx context.Context,
	topic string,
	consumerGroup string,
	msg amqp.Delivery,
	handler func(context.Context, contractsv1.Envelope) error,
) {
	var event contractsv1.Envelope
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		r.logger.Error("rabbitmq message decode failed",
			"event", "rabbitmq_decode_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"error", err.Error(),
		)
		_ = msg.Nack(false, false)
		return
	}

	if err := handler(ctx, event); err != nil {
		r.logger.Error("consumer handler failed",
			"event", "rabbitmq_consume_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"consumer_group", consumerGroup,
			"event_id", event.EventID,
			"redelivered", msg.Redelivered,
			"error", err.Error(),
		)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	if err := msg.Ack(false); err != nil {
		r.logger.Error("rabbitmq ack failed",
			"event", "rabbitmq_ack_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"event_id", event.EventID,
			"error", err.Error(),
		)
	}
}
