package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"votingapp/contexts/elections/ballot-engine/ports"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultPrefetch        = 1
	defaultMaxDialAttempts = 5
)

var _ ports.MessageBroker = (*RabbitMQ)(nil)

type RabbitMQConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	VHost    string
	// Prefetch bounds unacked deliveries per consumer.
	Prefetch        int
	MaxDialAttempts uint
}

func (c RabbitMQConfig) URL() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// RabbitMQ owns one AMQP connection and hands out channels on it. A closed
// connection is redialled with exponential backoff on the next OpenChannel.
type RabbitMQ struct {
	cfg    RabbitMQConfig
	mu     sync.Mutex
	conn   *amqp.Connection
	logger *slog.Logger
}

func NewRabbitMQ(cfg RabbitMQConfig, logger *slog.Logger) *RabbitMQ {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	if cfg.MaxDialAttempts == 0 {
		cfg.MaxDialAttempts = defaultMaxDialAttempts
	}
	return &RabbitMQ{cfg: cfg, logger: logger}
}

func (r *RabbitMQ) OpenChannel(ctx context.Context) (ports.BrokerChannel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if errors.Is(err, amqp.ErrClosed) {
		r.dropConnection(conn)
		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		ch, err = conn.Channel()
	}
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &rabbitChannel{
		ch:       ch,
		prefetch: r.cfg.Prefetch,
		done:     make(chan struct{}),
	}, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	url := r.cfg.URL()
	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		attempt++
		conn, err := amqp.Dial(url)
		if err != nil {
			r.logger.Warn("amqp dial failed",
				"event", "rabbitmq_dial_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"host", r.cfg.Host,
				"attempt", attempt,
				"error", err.Error(),
			)
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(newDialBackOff()),
		backoff.WithMaxTries(r.cfg.MaxDialAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq %s: %w", r.cfg.Host, err)
	}
	r.conn = conn
	r.logger.Info("amqp connection established",
		"event", "rabbitmq_connected",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"host", r.cfg.Host,
		"attempts", attempt,
	)
	go r.watch(conn)
	return conn, nil
}

func (r *RabbitMQ) watch(conn *amqp.Connection) {
	reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if ok && reason != nil {
		r.logger.Warn("amqp connection closed",
			"event", "rabbitmq_connection_closed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"host", r.cfg.Host,
			"code", reason.Code,
			"reason", reason.Reason,
		)
	}
	r.dropConnection(conn)
}

func (r *RabbitMQ) dropConnection(conn *amqp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		r.conn = nil
	}
}

func newDialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

type rabbitChannel struct {
	ch        *amqp.Channel
	prefetch  int
	done      chan struct{}
	closeOnce sync.Once
}

func (c *rabbitChannel) DeclareQueue(_ context.Context, spec ports.QueueSpec) (string, error) {
	q, err := c.ch.QueueDeclare(spec.Name, spec.Durable, spec.AutoDelete, spec.Exclusive, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %q: %w", spec.Name, err)
	}
	return q.Name, nil
}

func (c *rabbitChannel) Publish(ctx context.Context, queue string, msg ports.Message) error {
	publishing := amqp.Publishing{
		ContentType:   msg.ContentType,
		CorrelationId: msg.CorrelationID,
		ReplyTo:       msg.ReplyTo,
		Timestamp:     time.Now().UTC(),
		Body:          msg.Body,
	}
	if msg.Persistent {
		publishing.DeliveryMode = amqp.Persistent
	}
	if err := c.ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("publish to %q: %w", queue, err)
	}
	return nil
}

func (c *rabbitChannel) Consume(_ context.Context, queue string, consumer string) (<-chan ports.Delivery, error) {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", queue, err)
	}
	out := make(chan ports.Delivery)
	go func() {
		defer close(out)
		for msg := range msgs {
			delivery := ports.Delivery{
				Message: ports.Message{
					Body:          msg.Body,
					ContentType:   msg.ContentType,
					CorrelationID: msg.CorrelationId,
					ReplyTo:       msg.ReplyTo,
					Persistent:    msg.DeliveryMode == amqp.Persistent,
				},
				DeliveryTag: msg.DeliveryTag,
			}
			select {
			case out <- delivery:
			case <-c.done:
				return
			}
		}
	}()
	return out, nil
}

func (c *rabbitChannel) Ack(_ context.Context, deliveryTag uint64) error {
	return c.ch.Ack(deliveryTag, false)
}

func (c *rabbitChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ch.Close()
		if errors.Is(err, amqp.ErrClosed) {
			err = nil
		}
	})
	return err
}
