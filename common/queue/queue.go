package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/inkfold/prepress/common/logger"
)

// Handler processes one delivered job. Returning nil acknowledges the job.
// A plain error re-queues it with exponential backoff until MaxDeliveries;
// an error wrapped in backoff.Permanent goes straight to the dead-letter
// stream. Content-level failures should be absorbed by the handler itself
// (persisted as item state), not returned.
type Handler func(ctx context.Context, job *Job) error

// Job is one delivery of a queued message
type Job struct {
	MessageID string
	Attempt   int
	Payload   []byte
}

// Options configures one consumer pool
type Options struct {
	Stream            string
	Group             string
	Concurrency       int
	MaxDeliveries     int
	RetryInitial      time.Duration
	VisibilityTimeout time.Duration
}

// StreamQueue is a durable at-least-once queue on Redis Streams with
// consumer groups, bounded concurrency and stalled-job reclaim.
type StreamQueue struct {
	rdb *redis.Client
	log *logger.Logger
}

// New creates a queue client
func New(rdb *redis.Client, log *logger.Logger) *StreamQueue {
	return &StreamQueue{rdb: rdb, log: log}
}

type envelope struct {
	Attempt   int
	Payload   []byte
	NotBefore int64 // unix millis; zero means immediately deliverable
}

// Enqueue appends a job to a stream
func (q *StreamQueue) Enqueue(ctx context.Context, stream string, payload any) (string, error) {
	return q.add(ctx, stream, envelope{Attempt: 1, Payload: mustJSON(payload)})
}

func (q *StreamQueue) add(ctx context.Context, stream string, env envelope) (string, error) {
	values := map[string]any{
		"attempt": env.Attempt,
		"payload": string(env.Payload),
	}
	if env.NotBefore > 0 {
		values["not_before"] = env.NotBefore
	}
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// Consume runs a fixed-size worker pool over the stream until ctx is
// cancelled. Each worker pulls one message at a time; a reclaim loop
// re-delivers messages whose consumer stalled past the visibility timeout.
func (q *StreamQueue) Consume(ctx context.Context, opts Options, h Handler) error {
	err := q.rdb.XGroupCreateMkStream(ctx, opts.Stream, opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	q.log.Info("consumer pool starting",
		"stream", opts.Stream,
		"group", opts.Group,
		"concurrency", opts.Concurrency)

	for i := 0; i < opts.Concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", opts.Group, i)
		go q.readLoop(ctx, opts, consumer, h)
	}
	if opts.VisibilityTimeout > 0 {
		go q.reclaimLoop(ctx, opts, h)
	}

	<-ctx.Done()
	q.log.Info("consumer pool stopping", "stream", opts.Stream)
	return nil
}

func (q *StreamQueue) readLoop(ctx context.Context, opts Options, consumer string, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    opts.Group,
			Consumer: consumer,
			Streams:  []string{opts.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("xreadgroup failed", "stream", opts.Stream, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				q.process(ctx, opts, msg, h)
			}
		}
	}
}

// reclaimLoop sweeps messages stuck in other consumers' pending lists
// (crashed workers) back into circulation.
func (q *StreamQueue) reclaimLoop(ctx context.Context, opts Options, h Handler) {
	ticker := time.NewTicker(opts.VisibilityTimeout / 2)
	defer ticker.Stop()

	consumer := opts.Group + "-reclaim"
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := "0-0"
		for {
			msgs, next, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   opts.Stream,
				Group:    opts.Group,
				Consumer: consumer,
				MinIdle:  opts.VisibilityTimeout,
				Start:    start,
				Count:    10,
			}).Result()
			if err != nil {
				if ctx.Err() == nil {
					q.log.Error("xautoclaim failed", "stream", opts.Stream, "error", err)
				}
				break
			}
			for _, msg := range msgs {
				q.log.Warn("reclaimed stalled job", "stream", opts.Stream, "message_id", msg.ID)
				q.process(ctx, opts, msg, h)
			}
			if next == "0-0" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
}

// process handles one delivery. The message is acknowledged only after its
// outcome is durable in Redis: a successful handler run, a retry copy
// appended to the stream, or a dead-letter entry. If any of those writes
// fail the message stays in the pending list and the reclaim loop
// redelivers it after the visibility timeout.
func (q *StreamQueue) process(ctx context.Context, opts Options, msg redis.XMessage, h Handler) {
	job := &Job{MessageID: msg.ID, Attempt: 1}
	if v, ok := msg.Values["attempt"].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempt = n
		}
	}
	if v, ok := msg.Values["payload"].(string); ok {
		job.Payload = []byte(v)
	}

	// Retry copies carry a not-before timestamp; hold the message un-acked
	// until it is due. Backoff delays are far below the visibility timeout,
	// so holding it here never trips the reclaim sweep.
	if v, ok := msg.Values["not_before"].(string); ok {
		if due, err := strconv.ParseInt(v, 10, 64); err == nil {
			if !q.waitUntil(ctx, due) {
				return
			}
		}
	}

	err := h(ctx, job)
	if err == nil {
		q.ack(ctx, opts, msg.ID)
		return
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		if q.deadLetter(ctx, opts, job, perm.Unwrap()) {
			q.ack(ctx, opts, msg.ID)
		}
		return
	}

	if job.Attempt >= opts.MaxDeliveries {
		q.log.Error("job exhausted retries", "stream", opts.Stream, "attempt", job.Attempt, "error", err)
		if q.deadLetter(ctx, opts, job, err) {
			q.ack(ctx, opts, msg.ID)
		}
		return
	}

	delay := retryDelay(opts.RetryInitial, job.Attempt)
	q.log.Warn("job failed, scheduling retry",
		"stream", opts.Stream,
		"attempt", job.Attempt,
		"delay", delay,
		"error", err)

	next := envelope{
		Attempt:   job.Attempt + 1,
		Payload:   job.Payload,
		NotBefore: time.Now().Add(delay).UnixMilli(),
	}
	if _, addErr := q.add(ctx, opts.Stream, next); addErr != nil {
		// Leave the original un-acked; reclaim redelivers it.
		q.log.Error("retry enqueue failed", "stream", opts.Stream, "error", addErr)
		return
	}
	q.ack(ctx, opts, msg.ID)
}

func (q *StreamQueue) ack(ctx context.Context, opts Options, id string) {
	if err := q.rdb.XAck(ctx, opts.Stream, opts.Group, id).Err(); err != nil {
		q.log.Error("xack failed", "stream", opts.Stream, "message_id", id, "error", err)
	}
}

// waitUntil blocks until the unix-milli deadline passes. Returns false if
// the context was cancelled first, in which case the caller must leave the
// message un-acked.
func (q *StreamQueue) waitUntil(ctx context.Context, unixMilli int64) bool {
	wait := time.Until(time.UnixMilli(unixMilli))
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// deadLetter appends the job to the stream's dead-letter sibling. Reports
// whether the append succeeded; on failure the original delivery must stay
// pending so nothing is lost.
func (q *StreamQueue) deadLetter(ctx context.Context, opts Options, job *Job, cause error) bool {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: opts.Stream + ".dead",
		Values: map[string]any{
			"attempt": job.Attempt,
			"payload": string(job.Payload),
			"error":   msg,
		},
	}).Err()
	if err != nil {
		q.log.Error("dead-letter append failed", "stream", opts.Stream, "error", err)
		return false
	}
	return true
}

// retryDelay computes the exponential backoff delay for the given attempt
func retryDelay(initial time.Duration, attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	d := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = bo.NextBackOff()
	}
	return d
}

// SetProgress records a job's milestone on a TTL'd hash for observability.
// Percentages are informational, not a correctness contract.
func (q *StreamQueue) SetProgress(ctx context.Context, scope, id string, pct int, stage string) {
	key := progressKey(scope, id)
	pipe := q.rdb.Pipeline()
	pipe.HSet(ctx, key, "pct", pct, "stage", stage, "updated_at", time.Now().UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Debug("progress update failed", "key", key, "error", err)
	}
}

// Progress reads a job's last reported milestone
func (q *StreamQueue) Progress(ctx context.Context, scope, id string) (map[string]string, error) {
	return q.rdb.HGetAll(ctx, progressKey(scope, id)).Result()
}

func progressKey(scope, id string) string {
	return "progress:" + scope + ":" + id
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("queue payload not serializable: %v", err))
	}
	return data
}
