package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
)

func newDispatcher(poolSize int, timeout time.Duration) *Dispatcher {
	return New(config.Settings{WorkerPoolSize: poolSize, PipelineTimeout: timeout}, logger.NewNop())
}

func TestDoReturnsTaskError(t *testing.T) {
	d := newDispatcher(2, time.Second)
	defer d.Close()

	want := errors.New("boom")
	err := d.Do(context.Background(), 1, "failing", func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if err := d.Do(context.Background(), 1, "fine", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestSameStudentNeverOverlaps(t *testing.T) {
	d := newDispatcher(8, time.Second)
	defer d.Close()

	var running int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Do(context.Background(), 7, "serial", func(ctx context.Context) error {
				if atomic.AddInt32(&running, 1) > 1 {
					overlapped.Store(true)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if overlapped.Load() {
		t.Fatal("two tasks for the same student ran concurrently")
	}
}

func TestDifferentStudentsRunConcurrently(t *testing.T) {
	d := newDispatcher(4, time.Second)
	defer d.Close()

	gate := make(chan struct{})
	var reached sync.WaitGroup
	reached.Add(2)
	var wg sync.WaitGroup
	for _, id := range []uint{1, 2} {
		wg.Add(1)
		go func(student uint) {
			defer wg.Done()
			_ = d.Do(context.Background(), student, "parallel", func(ctx context.Context) error {
				reached.Done()
				<-gate
				return nil
			})
		}(id)
	}

	done := make(chan struct{})
	go func() { reached.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("students blocked each other")
	}
	close(gate)
	wg.Wait()
}

func TestPoolBoundsConcurrency(t *testing.T) {
	d := newDispatcher(2, time.Second)
	defer d.Close()

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(student uint) {
			defer wg.Done()
			_ = d.Do(context.Background(), student, "bounded", func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}(uint(i))
	}
	wg.Wait()
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestTaskGetsDeadline(t *testing.T) {
	d := newDispatcher(1, 10*time.Millisecond)
	defer d.Close()

	err := d.Do(context.Background(), 1, "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestCancelledWaiterDoesNotRun(t *testing.T) {
	d := newDispatcher(1, time.Second)
	defer d.Close()

	blocker := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), 1, "holder", func(ctx context.Context) error {
			close(started)
			<-blocker
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	err := d.Do(ctx, 1, "waiter", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if ran.Load() {
		t.Fatal("cancelled waiter still ran")
	}
	close(blocker)
}

func TestCloseRejectsNewWork(t *testing.T) {
	d := newDispatcher(1, time.Second)
	d.Close()
	if err := d.Do(context.Background(), 1, "late", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("closed dispatcher accepted work")
	}
}
