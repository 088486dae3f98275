package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ghalamif/opcbridge/internal/ports"
)

// Config describes the broker connection and the deployment topic.
type Config struct {
	Broker         string        `yaml:"broker" validate:"required"`
	Topic          string        `yaml:"topic" validate:"required"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos" validate:"lte=2"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.Topic == "" {
		c.Topic = "plant1"
	}
	if c.ClientID == "" {
		c.ClientID = "opcbridge"
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.Topic == "" {
		return errors.New("topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos %d out of range", c.QoS)
	}
	return nil
}

// SubscribeFilter is the filter the writer subscribes with: the deployment
// topic and anything below it.
func (c Config) SubscribeFilter() string {
	return c.Topic + "/#"
}

type subscription struct {
	topic   string
	handler ports.MessageHandler
}

// Bus is a paho-backed publisher/subscriber. Subscriptions are replayed on
// every reconnect since sessions are clean.
type Bus struct {
	cfg    Config
	client paho.Client

	mu   sync.Mutex
	subs []subscription
}

// Dial connects to the broker with a client id unique to this instance.
func Dial(ctx context.Context, cfg Config, role string) (*Bus, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bus{cfg: cfg}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID(cfg.ClientID, role)).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(b.resubscribe)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	b.client = paho.NewClient(opts)
	if err := wait(ctx, b.client.Connect(), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return b, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	tok := b.client.Publish(topic, b.cfg.QoS, false, payload)
	if err := wait(ctx, tok, b.cfg.PublishTimeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.MessageHandler) error {
	sub := subscription{topic: topic, handler: handler}
	if err := b.subscribe(ctx, sub); err != nil {
		return err
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *Bus) Close() error {
	b.client.Disconnect(250)
	return nil
}

func (b *Bus) subscribe(ctx context.Context, sub subscription) error {
	tok := b.client.Subscribe(sub.topic, b.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		sub.handler(msg.Topic(), msg.Payload())
	})
	if err := wait(ctx, tok, b.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", sub.topic, err)
	}
	return nil
}

func (b *Bus) resubscribe(paho.Client) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ConnectTimeout)
		_ = b.subscribe(ctx, sub)
		cancel()
	}
}

func wait(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clientID(prefix, role string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, role, uuid.NewString()[:8])
}

var _ ports.Bus = (*Bus)(nil)
