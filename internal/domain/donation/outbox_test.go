package donation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestOutboxRunsTasks(t *testing.T) {
	outbox := NewOutbox(8)
	ctx, cancel := context.WithCancel(context.Background())
	go outbox.Run(ctx)

	var ran atomic.Int32
	done := make(chan struct{})
	outbox.Enqueue(Task{Name: "a", Fn: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	outbox.Enqueue(Task{Name: "b", Fn: func(context.Context) error {
		ran.Add(1)
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
	cancel()
	outbox.Wait()
	if ran.Load() != 2 {
		t.Fatalf("expected 2 tasks run, got %d", ran.Load())
	}
}

func TestOutboxIsolatesFailures(t *testing.T) {
	outbox := NewOutbox(8)
	ctx, cancel := context.WithCancel(context.Background())
	go outbox.Run(ctx)

	done := make(chan struct{})
	outbox.Enqueue(Task{Name: "panics", Fn: func(context.Context) error {
		panic("boom")
	}})
	outbox.Enqueue(Task{Name: "fails", Fn: func(context.Context) error {
		return errors.New("sink down")
	}})
	outbox.Enqueue(Task{Name: "survives", Fn: func(context.Context) error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died on a failing task")
	}
	cancel()
	outbox.Wait()
}

func TestOutboxDropsWhenFull(t *testing.T) {
	// No worker running, so the queue fills.
	outbox := NewOutbox(2)
	noop := Task{Name: "noop", Fn: func(context.Context) error { return nil }}

	if !outbox.Enqueue(noop) || !outbox.Enqueue(noop) {
		t.Fatal("queue should accept up to its capacity")
	}
	if outbox.Enqueue(noop) {
		t.Fatal("expected drop on full queue")
	}
}

func TestOutboxDrainsOnShutdown(t *testing.T) {
	outbox := NewOutbox(8)
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		outbox.Enqueue(Task{Name: "queued", Fn: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go outbox.Run(ctx)
	outbox.Wait()

	if ran.Load() != 5 {
		t.Fatalf("expected queued tasks to drain, ran %d", ran.Load())
	}
}
