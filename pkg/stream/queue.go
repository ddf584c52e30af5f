package stream

import (
	"context"
	"sync"

	"github.com/mikeboe/deep-search/pkg/research"
)

// Queue hands frames from a producing engine to one consumer. Emit never
// blocks, frames keep their order, and once the consumer detaches further
// frames are dropped while the producer keeps running.
type Queue struct {
	mu       sync.Mutex
	frames   []research.Frame
	closed   bool
	detached bool
	notify   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Emit implements research.Emitter.
func (q *Queue) Emit(f research.Frame) {
	q.mu.Lock()
	if q.closed || q.detached {
		q.mu.Unlock()
		return
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	q.wake()
}

// Close marks the end of the stream. Frames already queued are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Detach is called by a consumer that went away.
func (q *Queue) Detach() {
	q.mu.Lock()
	q.detached = true
	q.frames = nil
	q.mu.Unlock()
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain calls fn for every frame in order until the queue is closed and
// empty, fn fails, or ctx is done. On an early return the queue detaches.
func (q *Queue) Drain(ctx context.Context, fn func(research.Frame) error) error {
	for {
		q.mu.Lock()
		batch := q.frames
		q.frames = nil
		done := (q.closed && len(batch) == 0) || q.detached
		q.mu.Unlock()

		for _, f := range batch {
			if err := fn(f); err != nil {
				q.Detach()
				return err
			}
		}
		if done {
			return nil
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			q.Detach()
			return ctx.Err()
		case <-q.notify:
		}
	}
}
