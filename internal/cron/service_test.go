package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestServiceRunsRegisteredJob(t *testing.T) {
	service := NewService()
	var runs atomic.Int64
	service.Register(Job{
		Name:     "tick",
		Schedule: "@every 10ms",
		Run: func(ctx context.Context) (string, error) {
			runs.Add(1)
			return "", nil
		},
	})

	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer service.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("job never ran")
	}
}

func TestServiceRejectsBadSchedule(t *testing.T) {
	service := NewService()
	service.Register(Job{
		Name:     "broken",
		Schedule: "not a schedule",
		Run:      func(ctx context.Context) (string, error) { return "", nil },
	})

	if err := service.Start(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestServiceRejectsDoubleStart(t *testing.T) {
	service := NewService()
	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer service.Stop()

	if err := service.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
}

func TestServiceStopCancelsJobContext(t *testing.T) {
	service := NewService()
	cancelled := make(chan struct{}, 1)
	service.Register(Job{
		Name:     "watcher",
		Schedule: "@every 10ms",
		Run: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			select {
			case cancelled <- struct{}{}:
			default:
			}
			return "", ctx.Err()
		},
	})

	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Let the job start waiting on its context, then stop the service.
	time.Sleep(50 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		service.Stop()
		close(done)
	}()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context never cancelled")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	// Stop again is a no-op.
	service.Stop()
}
