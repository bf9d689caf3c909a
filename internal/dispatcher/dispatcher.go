package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
)

// Task is one unit of pipeline work bound to a student.
type Task func(ctx context.Context) error

// Dispatcher bounds concurrent pipeline work with a weighted semaphore and
// serializes work per student, so two events for the same learner can never
// interleave their downstream updates. Each task runs under the pipeline
// deadline.
type Dispatcher struct {
	log     *logger.Logger
	pool    *semaphore.Weighted
	timeout time.Duration

	mu       sync.Mutex
	students map[uint]*studentLane
	closed   bool
	wg       sync.WaitGroup
}

// studentLane is the per-student ticket queue. Tickets are handed out in
// submission order; each waits for its predecessor before running.
type studentLane struct {
	last chan struct{}
	refs int
}

func New(cfg config.Settings, log *logger.Logger) *Dispatcher {
	size := int64(cfg.WorkerPoolSize)
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		log:      log.With("component", "Dispatcher"),
		pool:     semaphore.NewWeighted(size),
		timeout:  cfg.PipelineTimeout,
		students: make(map[uint]*studentLane),
	}
}

// Do runs the task for the student and returns its error. The call blocks
// until earlier tasks for the same student have finished and a pool slot is
// free; ctx cancellation while waiting abandons the slot without running.
func (d *Dispatcher) Do(ctx context.Context, studentID uint, name string, task Task) error {
	turn, done, err := d.enqueue(studentID)
	if err != nil {
		return err
	}
	defer d.release(studentID, done)

	select {
	case <-turn:
	case <-ctx.Done():
		return fmt.Errorf("dispatch %s: %w", name, ctx.Err())
	}

	if err := d.pool.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("dispatch %s: %w", name, err)
	}
	defer d.pool.Release(1)

	runCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err = task(runCtx)
	elapsed := time.Since(start)
	if err != nil {
		d.log.Warn("Pipeline task failed", "task", name, "student_id", studentID, "elapsed", elapsed, "error", err)
		return err
	}
	d.log.Debug("Pipeline task done", "task", name, "student_id", studentID, "elapsed", elapsed)
	return nil
}

// Go runs the task in the background with the same ordering and pool
// guarantees. Errors are logged, not returned; the parent context only
// bounds the wait, a Close drains running tasks.
func (d *Dispatcher) Go(studentID uint, name string, task Task) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Do(context.Background(), studentID, name, task); err != nil {
			d.log.Error("Background pipeline task failed", "task", name, "student_id", studentID, "error", err)
		}
	}()
}

// enqueue takes a ticket on the student's lane: turn closes when the caller
// may run, done must be closed when it finishes.
func (d *Dispatcher) enqueue(studentID uint) (turn <-chan struct{}, done chan struct{}, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, nil, fmt.Errorf("dispatcher closed")
	}
	lane, ok := d.students[studentID]
	if !ok {
		ready := make(chan struct{})
		close(ready)
		lane = &studentLane{last: ready}
		d.students[studentID] = lane
	}
	turn = lane.last
	done = make(chan struct{})
	lane.last = done
	lane.refs++
	return turn, done, nil
}

func (d *Dispatcher) release(studentID uint, done chan struct{}) {
	close(done)
	d.mu.Lock()
	defer d.mu.Unlock()
	lane := d.students[studentID]
	lane.refs--
	if lane.refs == 0 {
		delete(d.students, studentID)
	}
}

// Close stops accepting work and waits for background tasks to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
