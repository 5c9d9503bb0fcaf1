package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrMalformedJob is returned by Dequeue for an entry that is not a job.
// The raw entry has already been moved to the dead letter list.
var ErrMalformedJob = errors.New("malformed webhook job")

// Job is one verified webhook waiting to be reconciled in the background.
type Job struct {
	ID         string    `json:"id"`
	DeliveryID uint64    `json:"delivery_id"`
	Provider   string    `json:"provider"`
	Payload    string    `json:"payload"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// raw is the list entry the job was read from, used to release it from the processing list.
	raw string
}

// RedisQueue is a FIFO list of jobs. Enqueue pushes on the left and Dequeue moves
// the oldest entry into a processing list, where it stays until it is acked,
// retried or dead-lettered.
type RedisQueue struct {
	client        redis.Cmdable
	key           string
	processingKey string
	deadLetterKey string
}

func NewRedisQueue(client redis.Cmdable, key, deadLetterKey string) *RedisQueue {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "refunds:webhooks"
	}
	deadLetterKey = strings.TrimSpace(deadLetterKey)
	if deadLetterKey == "" {
		deadLetterKey = key + ":dead"
	}

	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
		deadLetterKey: deadLetterKey,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// Dequeue waits up to timeout for a job. It returns nil, nil when the queue stayed empty.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	raw, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	job := &Job{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		if dlErr := q.move(ctx, q.deadLetterKey, raw, raw); dlErr != nil {
			return nil, dlErr
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	job.raw = raw
	return job, nil
}

// Ack releases a handled job.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	return q.client.LRem(context.WithoutCancel(ctx), q.processingKey, 1, job.raw).Err()
}

// Retry puts job back on the queue with its current attempt count.
func (q *RedisQueue) Retry(ctx context.Context, job *Job) error {
	return q.release(ctx, q.key, job)
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job) error {
	return q.release(ctx, q.deadLetterKey, job)
}

// Recover moves entries left in the processing list by a stopped consumer back
// to the head of the queue. Call it before any consumer on the queue starts.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) ProcessingLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.processingKey).Result()
}

func (q *RedisQueue) DeadLetterLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadLetterKey).Result()
}

func (q *RedisQueue) release(ctx context.Context, key string, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.move(ctx, key, string(body), job.raw)
}

// move pushes body onto key and drops raw from the processing list in one transaction.
// It runs even when ctx is already cancelled so an in-flight job is never lost.
func (q *RedisQueue) move(ctx context.Context, key, body, raw string) error {
	ctx = context.WithoutCancel(ctx)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, body)
		if raw != "" {
			pipe.LRem(ctx, q.processingKey, 1, raw)
		}
		return nil
	})
	return err
}
