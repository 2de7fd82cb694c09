package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue notifications are published to.
const DefaultQueue = "ticketing.notifications"

const (
	// defaultDialTimeout bounds a dial when the caller's context has no deadline.
	defaultDialTimeout = 5 * time.Second
	// redialAfter is how long publishes fail fast after a failed dial.
	redialAfter = 5 * time.Second
)

// ErrBrokerUnavailable is returned without dialling while a recent dial
// failure is cooling down.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Publisher hands messages to RabbitMQ for asynchronous delivery.  The
// connection is opened lazily and re-dialled after a failure.
type Publisher struct {
	url    string
	queue  string
	logger *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{url: url, queue: queue, now: time.Now, logger: logger.With("component", "notify-publisher")}
}

// Notify implements Notifier.  Messages are persistent JSON.  A dial
// never outlives ctx, and after a failed dial further calls fail fast
// until redialAfter has passed.
func (p *Publisher) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

// channel returns an open channel, dialling if needed.  Callers hold mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.now().Before(p.retryAt) {
		return nil, ErrBrokerUnavailable
	}
	timeout, err := dialTimeout(ctx, p.now())
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		p.retryAt = p.now().Add(redialAfter)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareQueue(ch, p.queue); err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.logger.Info("connected to broker", "queue", p.queue)
	p.conn, p.ch = conn, ch
	p.retryAt = time.Time{}
	return ch, nil
}

// dialTimeout is what is left of ctx's deadline, or the default.
func dialTimeout(ctx context.Context, now time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultDialTimeout, nil
	}
	d := deadline.Sub(now)
	if d <= 0 {
		return 0, context.DeadlineExceeded
	}
	return d, nil
}

func (p *Publisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
