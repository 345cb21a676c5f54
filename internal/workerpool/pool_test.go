package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsJob(t *testing.T) {
	p := New(Config{Workers: 2, QueueCapacity: 4})

	var ran int32
	done := make(chan struct{})
	err := p.Submit(context.Background(), func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
		close(done)
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run in time")
	}

	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("expected job to run once, ran %d times", ran)
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(Config{Workers: 1, QueueCapacity: 1})
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	err := p.Submit(context.Background(), func(ctx context.Context) {})
	if err == nil {
		t.Error("expected Submit() after Shutdown() to fail")
	}
}

func TestTrySubmitReportsFullQueue(t *testing.T) {
	block := make(chan struct{})
	p := New(Config{Workers: 1, QueueCapacity: 1})
	defer p.Shutdown(context.Background())

	// occupy the single worker so the queue fills behind it
	if !p.TrySubmit(func(ctx context.Context) { <-block }) {
		t.Fatal("expected first TrySubmit to succeed")
	}
	if !p.TrySubmit(func(ctx context.Context) {}) {
		t.Fatal("expected second TrySubmit to fill the queue")
	}
	if p.TrySubmit(func(ctx context.Context) {}) {
		t.Error("expected TrySubmit to report a full queue")
	}
	close(block)
}

func TestJobPanicDoesNotKillWorker(t *testing.T) {
	p := New(Config{Workers: 1, QueueCapacity: 2})
	defer p.Shutdown(context.Background())

	if err := p.Submit(context.Background(), func(ctx context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var ran int32
	done := make(chan struct{})
	if err := p.Submit(context.Background(), func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
		close(done)
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from panic to run next job")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("expected job after panic to still run")
	}
}
