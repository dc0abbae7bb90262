package messaging

import (
	"context"
	"strconv"
	"sync"
	"time"

	"wildfire-analytics/internal/domain"
)

// MemoryBroker is a process-local Broker for tests and single-process runs.
// Unacknowledged deliveries are only visible through InFlight; they are not
// redelivered.
type MemoryBroker struct {
	mu       sync.Mutex
	queues   map[domain.QueueName][]TaskMessage
	wake     chan struct{}
	inflight map[string]*Delivery
	timers   map[*time.Timer]struct{}
	seq      int64
	closed   bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:   make(map[domain.QueueName][]TaskMessage),
		wake:     make(chan struct{}),
		inflight: make(map[string]*Delivery),
		timers:   make(map[*time.Timer]struct{}),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, msg *TaskMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.queues[msg.Queue] = append(b.queues[msg.Queue], *msg)
	close(b.wake)
	b.wake = make(chan struct{})
	return nil
}

func (b *MemoryBroker) PublishDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, msg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	copied := *msg
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		b.mu.Unlock()
		_ = b.Publish(context.Background(), &copied)
	})
	b.timers[timer] = struct{}{}
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, queues []domain.QueueName) (*Delivery, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBrokerClosed
		}
		for _, q := range queues {
			pending := b.queues[q]
			if len(pending) == 0 {
				continue
			}
			msg := pending[0]
			b.queues[q] = pending[1:]
			b.seq++
			d := &Delivery{ID: strconv.FormatInt(b.seq, 10), Queue: q, Message: &msg}
			b.inflight[d.ID] = d
			b.mu.Unlock()
			return d, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

func (b *MemoryBroker) Ack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, d.ID)
	return nil
}

func (b *MemoryBroker) HealthCheck(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	return nil
}

// Len returns the number of ready messages on q.
func (b *MemoryBroker) Len(q domain.QueueName) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[q])
}

// Scheduled returns the number of delayed messages not yet published.
func (b *MemoryBroker) Scheduled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *MemoryBroker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Close wakes every blocked consumer and cancels pending delayed messages.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	close(b.wake)
	return nil
}
