package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tao-j/helvetic/internal/measurement"
)

const StatusTopic = "scales/{device}/status"

type MQTTOptions struct {
	Broker   string
	Port     int
	ClientID string
	// Topic may contain {device}.
	Topic  string
	Device string
}

// Status is the retained presence message. The broker publishes the
// offline variant as the client's will.
type Status struct {
	Device string    `json:"device"`
	Online bool      `json:"online"`
	Since  time.Time `json:"since"`
}

type MQTT struct {
	client    mqtt.Client
	opts      MQTTOptions
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMQTT(opts MQTTOptions, logger *slog.Logger) (*MQTT, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &MQTT{
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	will, err := json.Marshal(Status{Device: opts.Device, Online: false})
	if err != nil {
		return nil, fmt.Errorf("marshal will: %w", err)
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	o.SetClientID(opts.ClientID)
	o.SetCleanSession(true)
	o.SetBinaryWill(c.statusTopic(), will, 1, true)

	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetMaxReconnectInterval(60 * time.Second)

	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)

	o.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
		go c.announce()
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(o)
	return c, nil
}

func (c *MQTT) measurementTopic() string { return Topic(c.opts.Topic, c.opts.Device) }
func (c *MQTT) statusTopic() string      { return Topic(StatusTopic, c.opts.Device) }

// Connect waits for the first connection. It respects ctx and Close.
func (c *MQTT) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry the token only completes once a connection is up.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Publish sends msg as JSON with qos 1.
func (c *MQTT) Publish(ctx context.Context, msg measurement.Message) error {
	if msg.Device == "" {
		msg.Device = c.opts.Device
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}
	return c.publish(ctx, c.measurementTopic(), data, false)
}

func (c *MQTT) announce() {
	data, err := json.Marshal(Status{Device: c.opts.Device, Online: true, Since: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := c.publish(context.Background(), c.statusTopic(), data, true); err != nil {
		c.logger.Warn("mqtt status publish failed", "error", err)
	}
}

func (c *MQTT) publish(ctx context.Context, topic string, data []byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, 1, retained, data)
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout for topic %s", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("mqtt published", "topic", topic, "retained", retained, "bytes", len(data))
	return nil
}

func (c *MQTT) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Close publishes the offline status and disconnects. Safe to call more
// than once.
func (c *MQTT) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.IsConnected() {
			data, err := json.Marshal(Status{Device: c.opts.Device, Online: false, Since: time.Now().UTC()})
			if err == nil {
				_ = c.publish(context.Background(), c.statusTopic(), data, true)
			}
		}
		c.client.Disconnect(250)
		c.setConnected(false)
		c.logger.Info("mqtt disconnected")
	})
	return nil
}

func (c *MQTT) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
