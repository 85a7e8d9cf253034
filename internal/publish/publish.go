// Package publish forwards new measurements to message brokers.
package publish

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tao-j/helvetic/internal/measurement"
)

var ErrNotConnected = errors.New("publisher not connected")

type Publisher interface {
	Publish(ctx context.Context, msg measurement.Message) error
	Close() error
}

// Topic expands the {device} placeholder.
func Topic(template, device string) string {
	return strings.ReplaceAll(template, "{device}", device)
}

// Multi publishes to every publisher. Failures are logged and never
// returned, so one broker being down does not affect the others.
type Multi struct {
	pubs   []Publisher
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, pubs ...Publisher) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{pubs: pubs, logger: logger}
}

func (m *Multi) Len() int { return len(m.pubs) }

func (m *Multi) Publish(ctx context.Context, msg measurement.Message) error {
	for _, p := range m.pubs {
		if err := p.Publish(ctx, msg); err != nil {
			m.logger.Warn("publish measurement failed", "publisher", nameOf(p), "error", err)
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func nameOf(p Publisher) string {
	switch p.(type) {
	case *MQTT:
		return "mqtt"
	case *AMQP:
		return "amqp"
	default:
		return "other"
	}
}
