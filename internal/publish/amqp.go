package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tao-j/helvetic/internal/measurement"
)

const (
	reconnectDelay = 5 * time.Second
	publishTimeout = 10 * time.Second
)

// AMQP publishes measurements to a durable queue on the default exchange
// and redials in the background when the connection drops.
type AMQP struct {
	url    string
	queue  string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewAMQP(url, queue string, logger *slog.Logger) *AMQP {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQP{
		url:    url,
		queue:  queue,
		logger: logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run keeps a connection open until ctx is done or Close is called.
func (a *AMQP) Run(ctx context.Context) {
	defer close(a.done)
	for {
		closed, err := a.connect()
		if err != nil {
			a.logger.Warn("amqp connect failed", "error", err, "retry_in", reconnectDelay)
		} else {
			a.logger.Info("amqp connected", "queue", a.queue)
			select {
			case err := <-closed:
				a.reset()
				a.logger.Warn("amqp connection closed", "error", err)
			case <-ctx.Done():
				a.reset()
				return
			case <-a.stopCh:
				a.reset()
				return
			}
		}

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		}
	}
}

func (a *AMQP) connect() (<-chan *amqp.Error, error) {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", a.queue, err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	a.mu.Lock()
	a.conn, a.channel = conn, ch
	a.mu.Unlock()
	return closed, nil
}

func (a *AMQP) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil && !a.conn.IsClosed() {
		_ = a.conn.Close()
	}
	a.conn, a.channel = nil, nil
}

// Publish sends msg as a persistent JSON message.
func (a *AMQP) Publish(ctx context.Context, msg measurement.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = a.channel.PublishWithContext(ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.MeasuredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	a.logger.Debug("amqp published", "queue", a.queue, "bytes", len(body))
	return nil
}

// Close stops Run and closes the connection.
func (a *AMQP) Close() error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.reset()
	return nil
}

// Done is closed when Run returns.
func (a *AMQP) Done() <-chan struct{} { return a.done }
