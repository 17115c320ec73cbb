package fabric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-marketplace/internal/logger"
)

const (
	// handoffDelay keeps delivery asynchronous even within one process so
	// callers never accidentally depend on synchronous handling.
	handoffDelay = 100 * time.Millisecond
	// maxAttempts bounds redelivery of a message whose handler keeps failing.
	maxAttempts = 3
)

type memoryDelivery struct {
	routingKey string
	body       []byte
	attempt    int
}

type memoryQueue struct {
	binding QueueBinding
	handler Handler
	ch      chan memoryDelivery
}

// MemoryBus simulates the broker inside one process: each subscribed queue
// gets a buffered channel and a worker goroutine, publishes fan out to every
// queue whose binding matches, and failed deliveries are requeued a bounded
// number of times. Messages published to a queue with no subscriber yet are
// dropped, matching a broker with no binding in place.
type MemoryBus struct {
	log *logger.Logger

	mu     sync.RWMutex
	queues []*memoryQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemoryBus(log *logger.Logger) *MemoryBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryBus{log: log, ctx: ctx, cancel: cancel}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, routingKey string, body []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := false
	for _, q := range b.queues {
		if q.binding.Topic != topic || !q.binding.matches(routingKey) {
			continue
		}
		matched = true
		// Copy so a mutating handler can't corrupt another queue's view.
		buf := make([]byte, len(body))
		copy(buf, body)
		select {
		case q.ch <- memoryDelivery{routingKey: routingKey, body: buf, attempt: 1}:
		case <-b.ctx.Done():
			return b.ctx.Err()
		}
	}

	if !matched {
		b.log.Warn("FABRIC", fmt.Sprintf("no queue bound for %s/%s", topic, routingKey))
	}
	return nil
}

func (b *MemoryBus) Subscribe(binding QueueBinding, h Handler) error {
	q := &memoryQueue{
		binding: binding,
		handler: h,
		ch:      make(chan memoryDelivery, 256),
	}

	b.mu.Lock()
	b.queues = append(b.queues, q)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(q)
	b.log.LogFabric("SUBSCRIBE", binding.Queue, fmt.Sprintf("bound to %s", binding.Topic))
	return nil
}

func (b *MemoryBus) run(q *memoryQueue) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case d := <-q.ch:
			select {
			case <-time.After(handoffDelay):
			case <-b.ctx.Done():
				return
			}

			if err := q.handler(b.ctx, d.routingKey, d.body); err != nil {
				if d.attempt >= maxAttempts {
					b.log.Error("FABRIC", fmt.Sprintf("%s: dropping %s after %d attempts: %v",
						q.binding.Queue, d.routingKey, d.attempt, err))
					continue
				}
				b.log.Warn("FABRIC", fmt.Sprintf("%s: requeueing %s (attempt %d): %v",
					q.binding.Queue, d.routingKey, d.attempt, err))
				d.attempt++
				select {
				case q.ch <- d:
				case <-b.ctx.Done():
					return
				}
			}
		}
	}
}

// Close stops the workers. Undelivered messages are discarded.
func (b *MemoryBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}
