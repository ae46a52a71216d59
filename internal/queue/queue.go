// Package queue carries card scans from the reader process to the
// consumer that resolves and clocks them. Two backends: an in-memory
// channel for single-process setups and dev, and a redis list so the
// reader can run on the machine next to the physical card reader.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

// Scan is one card presentation captured by a reader.
type Scan struct {
	Code string
	At   time.Time
}

// Queue is the abstraction over the two backends.
type Queue interface {
	Publish(ctx context.Context, scan Scan) error
	Consume(ctx context.Context) (<-chan Scan, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Scan
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Scan, size)}
}

// Publish enqueues a scan.
func (q *InMemory) Publish(ctx context.Context, scan Scan) error {
	select {
	case q.ch <- scan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the worker.
func (q *InMemory) Consume(ctx context.Context) (<-chan Scan, error) {
	out := make(chan Scan)
	go func() {
		defer close(out)
		for {
			select {
			case scan := <-q.ch:
				select {
				case out <- scan:
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

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "zeiterfassung:scans"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a scan.
func (q *RedisQueue) Publish(ctx context.Context, scan Scan) error {
	return q.client.LPush(ctx, q.key, serialize(scan)).Err()
}

// Consume streams scans using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Scan, error) {
	out := make(chan Scan)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				if scan, ok := deserialize(res[1]); ok {
					select {
					case out <- scan:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// serialize stores scans as "code|timestamp".
func serialize(scan Scan) string {
	return scan.Code + "|" + scan.At.Format(timeclock.TimeLayout)
}

func deserialize(s string) (Scan, bool) {
	for i, r := range s {
		if r == '|' {
			at, err := time.ParseInLocation(timeclock.TimeLayout, s[i+1:], time.Local)
			if err != nil {
				at = time.Now()
			}
			return Scan{Code: s[:i], At: at}, true
		}
	}
	if s == "" {
		return Scan{}, false
	}
	return Scan{Code: s, At: time.Now()}, true
}
