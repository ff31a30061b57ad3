package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/simaland/userapi/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDefaultsToNoop(t *testing.T) {
	q, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)

	id, err := q.Publish(context.Background(), "events", []byte(`{}`), nil)
	assert.NoError(t, err)
	assert.Empty(t, id)

	err = q.Subscribe(context.Background(), "events", func(ctx context.Context, msg Message) error { return nil })
	assert.ErrorIs(t, err, ErrNoBroker)
	assert.NoError(t, q.Close())
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.ErrorContains(t, err, "unknown mq backend")
}

func TestOpenRabbitMQRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: config.MQBackendRabbitMQ})
	assert.ErrorContains(t, err, "rabbitmq url is required")
}

func TestOpenPubSubRequiresProject(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: config.MQBackendPubSub})
	assert.ErrorContains(t, err, "pubsub project id is required")
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "user.created", routingKey(map[string]string{"type": "user.created"}))
	assert.Equal(t, defaultRoutingKey, routingKey(nil))
}

func TestHeaderConversion(t *testing.T) {
	headers := attributesToHeaders(map[string]string{"type": "session.login"})
	assert.Equal(t, amqp.Table{"type": "session.login"}, headers)

	attrs := headersToAttributes(amqp.Table{"type": "user.deleted", "raw": []byte("x"), "n": int32(3)})
	assert.Equal(t, map[string]string{"type": "user.deleted", "raw": "x", "n": "3"}, attrs)
	assert.Nil(t, headersToAttributes(nil))
}

func TestNewMessageIDIsRandomHex(t *testing.T) {
	a, b := newMessageID(), newMessageID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
