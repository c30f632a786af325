package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const JobTypePasswordReset = "password_reset"

// Job is the queue envelope shared by QueueMailer and Consumer.
type Job struct {
	ID            string                `json:"id"`
	Type          string                `json:"type"`
	EnqueuedAt    time.Time             `json:"enqueuedAt"`
	PasswordReset *PasswordResetMessage `json:"passwordReset,omitempty"`
}

// Publisher is the subset of *amqp.Channel used for publishing.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type QueueMailer struct {
	ch      Publisher
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewQueueMailer(ch Publisher, queue string, timeout time.Duration, logger *slog.Logger) *QueueMailer {
	return &QueueMailer{
		ch:      ch,
		queue:   queue,
		timeout: timeout,
		logger:  logger,
	}
}

func (q *QueueMailer) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	job := Job{
		ID:            uuid.NewString(),
		Type:          JobTypePasswordReset,
		EnqueuedAt:    time.Now().UTC(),
		PasswordReset: &msg,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mail job: %w", err)
	}

	ctx, cancel := internal.WithTimeout(ctx, q.timeout)
	defer cancel()

	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.Type,
		Timestamp:    job.EnqueuedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish mail job: %w", err)
	}

	q.logger.Debug("mail job queued", "job_id", job.ID, "queue", q.queue)
	return nil
}

// Broker owns one AMQP connection and channel with the mail queue declared.
type Broker struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Queue   string
}

func Dial(url, queue string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Broker{Conn: conn, Channel: ch, Queue: queue}, nil
}

func (b *Broker) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch > 0 {
		if err := b.Channel.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return b.Channel.Consume(b.Queue, "", false, false, false, false, nil)
}

func (b *Broker) Close() error {
	if err := b.Channel.Close(); err != nil && err != amqp.ErrClosed {
		_ = b.Conn.Close()
		return err
	}
	return b.Conn.Close()
}
