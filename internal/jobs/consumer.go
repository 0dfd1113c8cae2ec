package jobs

import (
	"context"
	"log/slog"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/queue"
)

// Consumer drains a queue into a Handler. A failed envelope is requeued
// with exponential backoff until its Retries are spent, then dead-lettered.
type Consumer struct {
	queue   queue.Queue
	handler Handler
	backoff time.Duration
	log     *slog.Logger
}

func NewConsumer(q queue.Queue, h Handler, backoff time.Duration, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{queue: q, handler: h, backoff: backoff, log: logger}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.queue.Consume(ctx)
	if err != nil {
		return err
	}
	c.log.InfoContext(ctx, "worker consuming jobs")
	for env := range msgs {
		c.Process(ctx, env)
	}
	return ctx.Err()
}

// Process handles one envelope and decides its fate.
func (c *Consumer) Process(ctx context.Context, env queue.Envelope) {
	err := c.handler.Handle(ctx, env)
	if err == nil {
		metrics.JobAttempts.WithLabelValues("ok").Inc()
		return
	}
	env.LastError = err.Error()

	if apperr.Is(err, apperr.Validation) || env.Attempt >= env.Retries {
		metrics.JobAttempts.WithLabelValues("dead").Inc()
		c.log.ErrorContext(ctx, "job dead-lettered",
			slog.String("message_id", env.ID),
			slog.String("url", env.URL),
			slog.Int("attempt", env.Attempt),
			slog.Any("error", err))
		if dlErr := c.queue.DeadLetter(ctx, env); dlErr != nil {
			c.log.ErrorContext(ctx, "dead letter failed", slog.String("message_id", env.ID), slog.Any("error", dlErr))
		}
		return
	}

	env.Attempt++
	delay := c.backoff << (env.Attempt - 1)
	metrics.JobAttempts.WithLabelValues("retry").Inc()
	c.log.WarnContext(ctx, "job failed, retrying",
		slog.String("message_id", env.ID),
		slog.Int("attempt", env.Attempt),
		slog.Duration("backoff", delay),
		slog.Any("error", err))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	// requeue even when shutting down so the job is not lost
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if rqErr := c.queue.Requeue(rctx, env); rqErr != nil {
		c.log.ErrorContext(ctx, "requeue failed", slog.String("message_id", env.ID), slog.Any("error", rqErr))
	}
}
