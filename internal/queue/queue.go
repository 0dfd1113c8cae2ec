package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Receipt acknowledges a durably queued message.
type Receipt struct {
	MessageID string `json:"messageId"`
}

// Envelope is what travels through the queue. URL names the consumer route
// the body is meant for; Retries bounds how often the consumer may retry it.
type Envelope struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	Body        json.RawMessage `json:"body"`
	Retries     int             `json:"retries"`
	Attempt     int             `json:"attempt"`
	PublishedAt time.Time       `json:"publishedAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// Dispatcher publishes durable, retryable, at-least-once messages.
type Dispatcher interface {
	Publish(ctx context.Context, url string, body []byte, retries int) (Receipt, error)
}

// Queue is the abstraction over different backends.
type Queue interface {
	Dispatcher
	Consume(ctx context.Context) (<-chan Envelope, error)
	Requeue(ctx context.Context, env Envelope) error
	DeadLetter(ctx context.Context, env Envelope) error
}

func newEnvelope(url string, body []byte, retries int) (Envelope, error) {
	if url == "" {
		return Envelope{}, errors.New("queue: url required")
	}
	if !json.Valid(body) {
		return Envelope{}, errors.New("queue: body must be json")
	}
	if retries < 0 {
		retries = 0
	}
	return Envelope{
		ID:          uuid.NewString(),
		URL:         url,
		Body:        json.RawMessage(body),
		Retries:     retries,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Envelope

	mu   sync.Mutex
	dead []Envelope
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Envelope, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, url string, body []byte, retries int) (Receipt, error) {
	env, err := newEnvelope(url, body, retries)
	if err != nil {
		return Receipt{}, err
	}
	if err := q.Requeue(ctx, env); err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: env.ID}, nil
}

// Requeue puts an envelope back as-is.
func (q *InMemory) Requeue(ctx context.Context, env Envelope) error {
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetter parks an envelope that exhausted its retries.
func (q *InMemory) DeadLetter(_ context.Context, env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, env)
	return nil
}

// Dead returns the dead-lettered envelopes.
func (q *InMemory) Dead() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Envelope(nil), q.dead...)
}

// Len reports how many envelopes are waiting.
func (q *InMemory) Len() int { return len(q.ch) }

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case env := <-q.ch:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics. Dead letters go
// to key + ":dead".
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "classroom:jobs"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, url string, body []byte, retries int) (Receipt, error) {
	env, err := newEnvelope(url, body, retries)
	if err != nil {
		return Receipt{}, err
	}
	if err := q.Requeue(ctx, env); err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: env.ID}, nil
}

// Requeue pushes an envelope back onto the list.
func (q *RedisQueue) Requeue(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// DeadLetter parks an envelope that exhausted its retries.
func (q *RedisQueue) DeadLetter(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key+":dead", raw).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// PublishWithRetry calls d.Publish up to attempts times, doubling the wait
// between tries starting at backoff.
func PublishWithRetry(ctx context.Context, d Dispatcher, attempts int, backoff time.Duration, url string, body []byte, retries int) (Receipt, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff << (i - 1)):
			case <-ctx.Done():
				return Receipt{}, ctx.Err()
			}
		}
		receipt, err := d.Publish(ctx, url, body, retries)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
	}
	return Receipt{}, lastErr
}
