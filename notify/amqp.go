package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange codes are published to.
const DefaultExchange = "auth.notifications"

// Channel is the subset of *amqp.Channel the notifier uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes codes to a durable topic exchange.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	reopen   func() (Channel, error)
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

// DialAMQP connects to the broker at rawURL and declares exchange.
func DialAMQP(rawURL, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	n, err := NewAMQPNotifier(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	n.conn = conn
	n.reopen = func() (Channel, error) { return conn.Channel() }
	return n, nil
}

// NewAMQPNotifier wraps an open channel. An empty exchange uses
// DefaultExchange.
func NewAMQPNotifier(ch Channel, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	if ch == nil {
		return nil, errors.New("notify: nil amqp channel")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := declareExchange(ch, exchange); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &AMQPNotifier{
		channel:  ch,
		exchange: exchange,
		logger:   logger.With("component", "notify.amqp"),
		now:      time.Now,
	}, nil
}

// Notify publishes n. A failed publish is retried once on a fresh channel
// when the notifier owns its connection.
func (a *AMQPNotifier) Notify(ctx context.Context, n otpauth.Notification) error {
	body, err := json.Marshal(NewMessage(n))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    a.now(),
		Body:         body,
	}
	if !n.ExpiresAt.IsZero() {
		if ttl := n.ExpiresAt.Sub(a.now()); ttl > 0 {
			msg.Expiration = fmt.Sprintf("%d", ttl.Milliseconds())
		}
	}

	key := RoutingKey(n.Channel, n.Purpose)

	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.channel.PublishWithContext(ctx, a.exchange, key, false, false, msg)
	if err == nil {
		return nil
	}
	if a.reopen == nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	a.logger.Warn("amqp publish failed, reopening channel", "exchange", a.exchange, "error", err)

	ch, chErr := a.reopen()
	if chErr != nil {
		return fmt.Errorf("amqp reopen channel: %w", errors.Join(err, chErr))
	}
	if exErr := declareExchange(ch, a.exchange); exErr != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange %q: %w", a.exchange, exErr)
	}
	a.channel = ch

	if err := ch.PublishWithContext(ctx, a.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close releases the channel and, when dialed by DialAMQP, the connection.
func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.channel != nil {
		errs = append(errs, a.channel.Close())
	}
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	return errors.Join(errs...)
}

func declareExchange(ch Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}

	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url: scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
