package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueForTest(t *testing.T) *RedisQueue {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, "test:webhooks", "")
}

func TestRedisQueueRoundTrip(t *testing.T) {
	q := newQueueForTest(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 1, Provider: "tap", Payload: `{"id":"ref_1"}`}))
	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 2, Provider: "tap", Payload: `{"id":"ref_2"}`}))

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, uint64(1), first.DeliveryID)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.EnqueuedAt.IsZero())

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"ref_2"}`, second.Payload)
}

func TestRedisQueueDequeueEmpty(t *testing.T) {
	q := newQueueForTest(t)

	job, err := q.Dequeue(context.Background(), time.Second)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestConsumerSuccess(t *testing.T) {
	q := newQueueForTest(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 9}))

	handled := 0
	consumer := NewConsumer(q, func(_ context.Context, job *Job) error {
		handled++
		assert.Equal(t, 1, job.Attempts)
		return nil
	}, nil, 3, time.Second)

	took, err := consumer.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	assert.Equal(t, 1, handled)

	size, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	inFlight, err := q.ProcessingLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight)
}

func TestConsumerRetriesThenDeadLetters(t *testing.T) {
	q := newQueueForTest(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 5}))

	attempts := 0
	var failed *Job
	consumer := NewConsumer(q,
		func(context.Context, *Job) error {
			attempts++
			return errors.New("database unavailable")
		},
		func(_ context.Context, job *Job, err error) {
			failed = job
			assert.EqualError(t, err, "database unavailable")
		},
		3,
		time.Second,
	)

	for i := 0; i < 3; i++ {
		took, err := consumer.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, took)
	}

	assert.Equal(t, 3, attempts)
	require.NotNil(t, failed)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, "database unavailable", failed.LastError)

	pending, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	inFlight, err := q.ProcessingLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight)

	dead, err := q.DeadLetterLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	q := newQueueForTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	consumer := NewConsumer(q, func(context.Context, *Job) error { return nil }, nil, 3, time.Second)
	assert.NoError(t, consumer.Run(ctx))
}

func TestRedisQueueDequeueKeepsJobInProcessingUntilAcked(t *testing.T) {
	q := newQueueForTest(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 1}))

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)

	inFlight, err := q.ProcessingLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inFlight)

	require.NoError(t, q.Ack(ctx, job))
	inFlight, err = q.ProcessingLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight)
}

func TestRedisQueueRecoverRequeuesAbandonedJobs(t *testing.T) {
	q := newQueueForTest(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 1}))
	require.NoError(t, q.Enqueue(ctx, &Job{DeliveryID: 2}))

	// A consumer that died mid-job leaves its entry in the processing list.
	abandoned, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, abandoned)

	moved, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	inFlight, err := q.ProcessingLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight)

	next, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, abandoned.DeliveryID, next.DeliveryID)
}

func TestConsumerReturnsInterruptedJobToQueue(t *testing.T) {
	q := newQueueForTest(t)
	require.NoError(t, q.Enqueue(context.Background(), &Job{DeliveryID: 7}))

	ctx, cancel := context.WithCancel(context.Background())
	consumer := NewConsumer(q, func(ctx context.Context, _ *Job) error {
		cancel()
		return ctx.Err()
	}, func(context.Context, *Job, error) {
		assert.Fail(t, "interrupted job must not be reported as failed")
	}, 1, time.Second)

	took, err := consumer.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	background := context.Background()
	pending, err := q.Len(background)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	inFlight, err := q.ProcessingLen(background)
	require.NoError(t, err)
	assert.Zero(t, inFlight)

	dead, err := q.DeadLetterLen(background)
	require.NoError(t, err)
	assert.Zero(t, dead)

	job, err := q.Dequeue(background, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, uint64(7), job.DeliveryID)
	assert.Zero(t, job.Attempts)
}

func TestRedisQueueDeadLetterRunsOnCancelledContext(t *testing.T) {
	q := newQueueForTest(t)
	require.NoError(t, q.Enqueue(context.Background(), &Job{DeliveryID: 3}))

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.DeadLetter(ctx, job))

	background := context.Background()
	dead, err := q.DeadLetterLen(background)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	inFlight, err := q.ProcessingLen(background)
	require.NoError(t, err)
	assert.Zero(t, inFlight)
}

func TestConsumerDeadLettersUndecodableJob(t *testing.T) {
	q := newQueueForTest(t)
	ctx := context.Background()
	require.NoError(t, q.client.LPush(ctx, q.key, "not-a-job").Err())

	handled := false
	consumer := NewConsumer(q, func(context.Context, *Job) error {
		handled = true
		return nil
	}, nil, 3, time.Second)

	took, err := consumer.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	assert.False(t, handled)

	dead, err := q.client.LRange(ctx, q.deadLetterKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"not-a-job"}, dead)

	inFlight, err := q.ProcessingLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight)
}
