package mail

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type worker struct {
	id         int
	workerPool chan chan amqp.Delivery
	jobChannel chan amqp.Delivery
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan amqp.Delivery, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan amqp.Delivery),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(amqp.Delivery)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case d := <-w.jobChannel:
				w.logger.Debug("worker processing mail job", "worker_id", w.id, "message_id", d.MessageId)
				process(d)
			case <-ctx.Done():
				w.logger.Debug("worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Consumer delivers queued mail jobs through a pool of workers.
type Consumer struct {
	sender  Mailer
	workers int
	logger  *slog.Logger
}

func NewConsumer(sender Mailer, workers int, logger *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	return &Consumer{
		sender:  sender,
		workers: workers,
		logger:  logger,
	}
}

// Run dispatches deliveries until the channel closes or ctx is cancelled, then waits for
// in-flight jobs. Deliveries not handed to a worker are requeued.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	workerCtx, cancel := context.WithCancel(context.Background())
	processCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	workerPool := make(chan chan amqp.Delivery, c.workers)
	for i := 0; i < c.workers; i++ {
		newWorker(i, workerPool, c.logger).start(workerCtx, &wg, func(d amqp.Delivery) {
			c.process(processCtx, d)
		})
	}
	c.logger.Info("mail consumer started", "workers", c.workers)

	c.dispatch(ctx, deliveries, workerPool)

	cancel()
	wg.Wait()
	c.logger.Info("mail consumer stopped")
}

func (c *Consumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, workerPool chan chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			select {
			case jobChannel := <-workerPool:
				jobChannel <- d
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil || job.Type != JobTypePasswordReset || job.PasswordReset == nil {
		c.logger.Error("dropping malformed mail job", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.sender.SendPasswordReset(ctx, *job.PasswordReset); err != nil {
		// one redelivery, then drop
		requeue := !d.Redelivered
		c.logger.Error("mail delivery failed",
			"job_id", job.ID,
			"to", job.PasswordReset.To,
			"requeue", requeue,
			"error", err)
		_ = d.Nack(false, requeue)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("failed to ack mail job", "job_id", job.ID, "error", err)
		return
	}
	c.logger.Info("password reset email sent", "job_id", job.ID, "to", job.PasswordReset.To)
}
