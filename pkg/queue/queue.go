// Package queue implements the result channel between a parent orchestrator
// and its child processes: a redis list per batch and host, carrying JSON
// records.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is refreshed on the queue key on every access so abandoned
	// queues expire on their own.
	DefaultTTL = time.Hour

	// DefaultPollInterval is the delay between two pops while waiting.
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrEmpty is returned when no record is available.
var ErrEmpty = errors.New("queue is empty")

// Key builds the queue key for a batch and host, e.g. Q_<batch>_<host>.
func Key(prefix, batch, host string) string {
	if prefix == "" {
		prefix = "Q"
	}

	return strings.Join([]string{prefix, batch, host}, "_")
}

// Option configures a Queue.
type Option func(*Queue)

// WithTTL sets the key expiry.
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithPollInterval sets the delay between pops in Get.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(q *Queue) {
		q.log = log.WithField("component", "queue")
	}
}

// Queue is a FIFO of JSON records stored in a redis list. Exactly one
// producer and one consumer are expected per key.
type Queue struct {
	client       redis.UniversalClient
	key          string
	ttl          time.Duration
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// New returns a queue bound to key.
func New(client redis.UniversalClient, key string, opts ...Option) *Queue {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	q := &Queue{
		client:       client,
		key:          key,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
		log:          l,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Key returns the redis key of the queue.
func (q *Queue) Key() string {
	return q.key
}

// Put appends v to the queue and refreshes its TTL.
func (q *Queue) Put(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.key, data)
	pipe.Expire(ctx, q.key, q.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pushing to %s: %w", q.key, err)
	}

	q.log.WithField("key", q.key).Debug("Record queued")

	return nil
}

// GetNowait pops the oldest record into out. It returns ErrEmpty if the
// queue holds no record.
func (q *Queue) GetNowait(ctx context.Context, out any) error {
	data, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrEmpty
	}

	if err != nil {
		return fmt.Errorf("popping from %s: %w", q.key, err)
	}

	if err := q.client.Expire(ctx, q.key, q.ttl).Err(); err != nil {
		q.log.WithError(err).WithField("key", q.key).Warn("Failed to refresh queue TTL")
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding record from %s: %w", q.key, err)
	}

	return nil
}

// Get waits up to wait for a record. It returns ErrEmpty when the wait
// elapses without one. A zero wait behaves like GetNowait.
func (q *Queue) Get(ctx context.Context, out any, wait time.Duration) error {
	deadline := time.Now().Add(wait)

	for {
		err := q.GetNowait(ctx, out)
		if !errors.Is(err, ErrEmpty) {
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrEmpty
		}

		timer := time.NewTimer(min(q.pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Len returns the number of queued records.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading length of %s: %w", q.key, err)
	}

	return n, nil
}

// Clear removes the queue key.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.key).Err(); err != nil {
		return fmt.Errorf("clearing %s: %w", q.key, err)
	}

	return nil
}
