package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/mail")

// QueueMailer publishes messages to a durable topic exchange for a separate
// delivery worker. Routing keys are "mail.<kind>".
type QueueMailer struct {
	exchange string
	logger   *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewQueueMailer dials the broker and declares the exchange.
func NewQueueMailer(amqpURL, exchange string, logger *zap.Logger) (*QueueMailer, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	q := &QueueMailer{exchange: exchange, logger: logger, conn: conn}
	if err := q.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *QueueMailer) openChannel() error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		q.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %q: %w", q.exchange, err)
	}
	q.channel = ch
	return nil
}

func (q *QueueMailer) Send(ctx context.Context, msg *domain.MailMessage) error {
	ctx, span := tracer.Start(ctx, "QueueMailer.Send")
	defer span.End()
	span.SetAttributes(attribute.String("mail.kind", msg.Kind))

	pub, err := encodePublishing(msg)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel == nil || q.channel.IsClosed() {
		q.logger.Warn("amqp channel closed, reopening")
		if err := q.openChannel(); err != nil {
			return err
		}
	}

	if err := q.channel.PublishWithContext(ctx, q.exchange, routingKey(msg.Kind), false, false, pub); err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			q.channel = nil
		}
		return fmt.Errorf("publish mail: %w", err)
	}
	return nil
}

// Close shuts the channel and connection.
func (q *QueueMailer) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		_ = q.channel.Close()
	}
	return q.conn.Close()
}

func routingKey(kind string) string {
	return "mail." + kind
}

func encodePublishing(msg *domain.MailMessage) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode mail: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Kind,
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}
