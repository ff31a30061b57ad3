package mq

import (
	"context"
	"errors"
)

// ErrNoBroker is returned when subscribing without a configured broker.
var ErrNoBroker = errors.New("no message broker configured")

// NoopBackend drops published messages. It is used when MQ_BACKEND=none.
type NoopBackend struct{}

func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

func (NoopBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

func (NoopBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return ErrNoBroker
}

func (NoopBackend) Close() error {
	return nil
}
