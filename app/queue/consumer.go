package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/factory"
)

type Handler func(ctx context.Context, job *Job) error

// FailureHandler is called once a job has used all its attempts.
type FailureHandler func(ctx context.Context, job *Job, err error)

type Consumer struct {
	queue       *RedisQueue
	handler     Handler
	onFailure   FailureHandler
	maxAttempts int
	popTimeout  time.Duration
	logger      logrus.FieldLogger
}

func NewConsumer(queue *RedisQueue, handler Handler, onFailure FailureHandler, maxAttempts int, popTimeout time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}

	return &Consumer{
		queue:       queue,
		handler:     handler,
		onFailure:   onFailure,
		maxAttempts: maxAttempts,
		popTimeout:  popTimeout,
		logger:      factory.NewModuleLogger("webhook-consumer"),
	}
}

// ProcessNext handles at most one job and reports whether one was taken.
// A failed job goes back on the queue until it runs out of attempts, then to the dead letter list.
// A job interrupted by ctx is put back without using an attempt.
func (c *Consumer) ProcessNext(ctx context.Context) (bool, error) {
	job, err := c.queue.Dequeue(ctx, c.popTimeout)
	if err != nil {
		if errors.Is(err, ErrMalformedJob) {
			c.logger.WithError(err).Error("Webhook job could not be decoded, moved to dead letter list")
			return true, nil
		}
		return false, err
	}
	if job == nil {
		return false, nil
	}

	job.Attempts++
	logger := c.logger.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"delivery_id": job.DeliveryID,
		"attempt":     job.Attempts,
	})

	handleErr := c.handler(ctx, job)
	if handleErr == nil {
		return true, c.queue.Ack(ctx, job)
	}

	if ctx.Err() != nil {
		logger.WithError(handleErr).Warn("Webhook job interrupted, returning it to the queue")
		job.Attempts--
		return true, c.queue.Retry(ctx, job)
	}

	job.LastError = handleErr.Error()
	if job.Attempts < c.maxAttempts {
		logger.WithError(handleErr).Warn("Webhook job failed, retrying")
		return true, c.queue.Retry(ctx, job)
	}

	logger.WithError(handleErr).Error("Webhook job failed permanently")
	if c.onFailure != nil {
		c.onFailure(ctx, job, handleErr)
	}
	return true, c.queue.DeadLetter(ctx, job)
}

// Run consumes jobs until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		_, err := c.ProcessNext(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}

		c.logger.WithError(err).Error("Webhook queue read failed")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}
