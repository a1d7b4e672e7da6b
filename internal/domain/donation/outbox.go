package donation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftvale/craftvale-api/internal/pkg/metrics"
)

// Task is a unit of post-commit fan-out work. Fn must be safe to run
// after the originating request has returned.
type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Outbox runs fan-out tasks on a single background worker. Enqueue
// never blocks the payment path: when the queue is full the task is
// dropped and counted, not retried. Task failures are logged and
// never reach the caller.
type Outbox struct {
	tasks       chan Task
	done        chan struct{}
	taskTimeout time.Duration
}

// NewOutbox creates outbox with the given queue capacity
func NewOutbox(queueSize int) *Outbox {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Outbox{
		tasks:       make(chan Task, queueSize),
		done:        make(chan struct{}),
		taskTimeout: 10 * time.Second,
	}
}

// Enqueue submits a task for background execution. Returns false when
// the queue is full and the task was dropped.
func (o *Outbox) Enqueue(task Task) bool {
	select {
	case o.tasks <- task:
		return true
	default:
		metrics.OutboxDropped()
		log.Warn().Str("task", task.Name).Msg("outbox queue full, task dropped")
		return false
	}
}

// Run processes tasks until ctx is cancelled, then drains what is
// already queued before returning.
func (o *Outbox) Run(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			o.drain()
			return
		case task := <-o.tasks:
			o.execute(task)
		}
	}
}

// Wait blocks until Run has returned.
func (o *Outbox) Wait() {
	<-o.done
}

func (o *Outbox) drain() {
	for {
		select {
		case task := <-o.tasks:
			o.execute(task)
		default:
			return
		}
	}
}

func (o *Outbox) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("task", task.Name).Msg("outbox task panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.taskTimeout)
	defer cancel()

	if err := task.Fn(ctx); err != nil {
		metrics.FanoutFailed(task.Name)
		log.Warn().Err(err).Str("task", task.Name).Msg("outbox task failed")
	}
}
