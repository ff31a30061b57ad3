package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/simaland/userapi/config"
)

const (
	rabbitExchangeKind = "topic"
	defaultRoutingKey  = "event"
	bindAllRoutingKeys = "#"
)

// RabbitMQClient publishes events to a topic exchange named after the
// channel, routed by the "type" attribute. Every subscriber gets its own
// queue bound to all routing keys, so events fan out.
type RabbitMQClient struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	durable       bool
	autoDelete    bool
	prefetchCount int

	mu        sync.Mutex
	exchanges map[string]bool
}

// NewRabbitMQClient constructs a RabbitMQ client from config.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:          conn,
		channel:       ch,
		durable:       cfg.QueueDurable,
		autoDelete:    cfg.QueueAutoDelete,
		prefetchCount: cfg.PrefetchCount,
		exchanges:     make(map[string]bool),
	}, nil
}

// Publish sends an event to the channel's exchange.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.declareExchange(channel); err != nil {
		return "", err
	}

	deliveryMode := amqp.Transient
	if r.durable {
		deliveryMode = amqp.Persistent
	}

	messageID := newMessageID()
	err := r.channel.PublishWithContext(ctx, channel, routingKey(attrs), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      attributesToHeaders(attrs),
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return messageID, nil
}

// Subscribe binds a private queue to the channel's exchange and hands every
// event to handler until ctx is done.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	deliveries, consumerTag, err := r.consume(channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := handler(ctx, message); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) consume(channel string) (<-chan amqp.Delivery, string, error) {
	if err := r.declareExchange(channel); err != nil {
		return nil, "", err
	}

	queue, err := r.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("declare queue: %w", err)
	}
	if err := r.channel.QueueBind(queue.Name, bindAllRoutingKeys, channel, false, nil); err != nil {
		return nil, "", fmt.Errorf("bind queue: %w", err)
	}

	consumerTag := fmt.Sprintf("userapi-%s", newMessageID())
	deliveries, err := r.channel.Consume(queue.Name, consumerTag, false, true, false, false, nil)
	if err != nil {
		return nil, "", err
	}
	return deliveries, consumerTag, nil
}

func (r *RabbitMQClient) declareExchange(name string) error {
	if r.exchanges[name] {
		return nil
	}
	if err := r.channel.ExchangeDeclare(name, rabbitExchangeKind, r.durable, r.autoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	r.exchanges[name] = true
	return nil
}

func routingKey(attrs map[string]string) string {
	if key := strings.TrimSpace(attrs["type"]); key != "" {
		return key
	}
	return defaultRoutingKey
}

func attributesToHeaders(attrs map[string]string) amqp.Table {
	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}
	return headers
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
