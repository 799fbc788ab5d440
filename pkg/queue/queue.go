// Package queue implements the process-wide admission controller for
// pipeline executions: a bounded-concurrency, bounded-backlog,
// deadline-aware FIFO queue with live position and estimated-wait
// reporting.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aizoomdoc/docpipeline/pkg/eventbus"
)

// ErrQueueFull is returned by Enqueue when the waiting set is already at
// capacity.
var ErrQueueFull = errors.New("queue: queue_full")

// ErrQueueTimeout is returned when a request waits past the admission
// timeout.
var ErrQueueTimeout = errors.New("queue: queue_timeout")

// seedProcessingTime warm-starts the wait estimator so early estimates
// aren't wildly optimistic before any request completes.
const seedProcessingTime = 15.0

const queuePositionTick = 2 * time.Second

// Config configures a Queue; zero values fall back to the defaults.
type Config struct {
	MaxConcurrent  int
	MaxSize        int
	TimeoutSeconds int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 50
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 300
	}
	return c
}

type waiter struct {
	requestID string
	chatID    string
	enqueuedAt time.Time
}

// Queue is a process-wide singleton admission controller. Construct exactly
// one per process and pass it down explicitly.
type Queue struct {
	cfg Config

	sem chan struct{} // counting semaphore of capacity MaxConcurrent

	mu             sync.Mutex
	waiting        []*waiter // FIFO order
	activeCount    int
	totalProcessed int64
	totalProcessTime float64 // seconds, for the running-mean EMA
}

// New constructs a Queue.
func New(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// avgProcessingTime returns the running-mean processing time, seeded at
// seedProcessingTime before the first completion.
func (q *Queue) avgProcessingTime() float64 {
	if q.totalProcessed == 0 {
		return seedProcessingTime
	}
	return q.totalProcessTime / float64(q.totalProcessed)
}

// position returns w's 1-based FIFO position, or 0 if not found.
func (q *Queue) position(w *waiter) int {
	for i, other := range q.waiting {
		if other == w {
			return i + 1
		}
	}
	return 0
}

func (q *Queue) removeWaiting(w *waiter) {
	for i, other := range q.waiting {
		if other == w {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

// Producer is the pipeline execution to run once admitted; it receives the
// request's event bus to forward its own events onto.
type Producer func(ctx context.Context, bus *eventbus.Bus) error

// ExecuteWithQueue enqueues requestID/chatID, waits for admission (emitting
// queue_position events every 2s while waiting), then runs producer,
// forwarding processing_started first. The slot is always released on
// exit, whether the producer succeeds, fails, or is cancelled, and the
// bus's send side is closed so the consumer's range terminates.
func (q *Queue) ExecuteWithQueue(ctx context.Context, requestID, chatID string, bus *eventbus.Bus, producer Producer) error {
	defer bus.CloseSend()

	w, err := q.enqueue(requestID, chatID)
	if err != nil {
		_ = bus.Error(ctx, "queue_full", err.Error())
		return err
	}

	admitted := make(chan struct{})
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		q.reportPositionUntilAdmitted(ctx, bus, w, admitted)
	}()
	defer func() { <-reporterDone }() // runs before CloseSend: no emit races the channel close

	deadline := time.Duration(q.cfg.TimeoutSeconds) * time.Second
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case q.sem <- struct{}{}:
		close(admitted)
	case <-timer.C:
		close(admitted)
		q.mu.Lock()
		q.removeWaiting(w)
		q.mu.Unlock()
		_ = bus.Error(ctx, "queue_timeout", fmt.Sprintf("admission timed out after %ds", q.cfg.TimeoutSeconds))
		return ErrQueueTimeout
	case <-ctx.Done():
		close(admitted)
		q.mu.Lock()
		q.removeWaiting(w)
		q.mu.Unlock()
		return ctx.Err()
	}

	q.mu.Lock()
	q.removeWaiting(w)
	q.activeCount++
	q.mu.Unlock()

	started := time.Now()
	defer func() {
		elapsed := time.Since(started).Seconds()
		q.mu.Lock()
		q.activeCount--
		q.totalProcessed++
		q.totalProcessTime += elapsed
		q.mu.Unlock()
		<-q.sem
	}()

	if err := bus.ProcessingStarted(ctx, requestID); err != nil {
		return err
	}
	return producer(ctx, bus)
}

func (q *Queue) enqueue(requestID, chatID string) (*waiter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) >= q.cfg.MaxSize {
		return nil, ErrQueueFull
	}
	w := &waiter{requestID: requestID, chatID: chatID, enqueuedAt: time.Now()}
	q.waiting = append(q.waiting, w)
	return w, nil
}

func (q *Queue) reportPositionUntilAdmitted(ctx context.Context, bus *eventbus.Bus, w *waiter, admitted <-chan struct{}) {
	ticker := time.NewTicker(queuePositionTick)
	defer ticker.Stop()
	for {
		select {
		case <-admitted:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.mu.Lock()
			pos := q.position(w)
			active := q.activeCount
			size := len(q.waiting)
			avg := q.avgProcessingTime()
			q.mu.Unlock()
			if pos == 0 {
				return // already admitted/removed
			}
			estimatedWait := float64(pos) * avg
			if err := bus.QueuePosition(ctx, pos, estimatedWait, active, size); err != nil {
				return
			}
		}
	}
}

// Status is a point-in-time snapshot of queue occupancy.
type Status struct {
	ActiveRequests int
	QueueSize      int
}

// Status returns the current occupancy snapshot.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{ActiveRequests: q.activeCount, QueueSize: len(q.waiting)}
}
