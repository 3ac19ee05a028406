package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Offer when the buffer has no room.
	ErrQueueFull = errors.New("jobs: queue full")
	// ErrNotRunning is returned by Offer before Start or after Stop.
	ErrNotRunning = errors.New("jobs: queue not running")
	// ErrDuplicate is returned by Offer while a task with the same key is
	// waiting, running or scheduled for retry.
	ErrDuplicate = errors.New("jobs: task already pending")
)

// Outcome labels what happened to a task.
type Outcome string

const (
	OutcomeQueued    Outcome = "queued"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDone      Outcome = "done"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Task is one unit of background work. Tasks sharing a non-empty Key are
// coalesced until the first one finishes.
type Task[T any] struct {
	Key     string
	Payload T
	Attempt int
	Queued  time.Time
}

// Handler processes a task. A non-nil error schedules a retry while attempts
// remain.
type Handler[T any] func(ctx context.Context, task Task[T]) error

// Options tunes a queue. Retries is the number of extra attempts after the
// first failure.
type Options struct {
	Workers  int
	Capacity int
	Retries  int
	Backoff  time.Duration
	Observe  func(Outcome)
	Logger   *zap.Logger
}

// Queue is a bounded worker pool that never blocks producers.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	opts    Options
	tasks   chan Task[T]

	mu       sync.Mutex
	inflight map[string]struct{}
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a stopped queue.
func New[T any](name string, handler Handler[T], opts Options) *Queue[T] {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 32
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:     name,
		handler:  handler,
		opts:     opts,
		tasks:    make(chan Task[T], opts.Capacity),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. Cancelling ctx has the same effect as Stop
// without waiting.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
	q.opts.Logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.opts.Workers))
}

// Stop cancels in-flight work and waits for workers and pending retries.
// Buffered tasks are discarded.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	for {
		select {
		case <-q.tasks:
		default:
			q.mu.Lock()
			q.inflight = make(map[string]struct{})
			q.mu.Unlock()
			q.opts.Logger.Info("queue stopped", zap.String("queue", q.name))
			return
		}
	}
}

// Offer buffers a task without blocking.
func (q *Queue[T]) Offer(task Task[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrNotRunning
	}
	if task.Key != "" {
		if _, busy := q.inflight[task.Key]; busy {
			return ErrDuplicate
		}
	}
	task.Attempt = 0
	task.Queued = time.Now()
	select {
	case q.tasks <- task:
	default:
		q.observe(OutcomeDropped)
		return ErrQueueFull
	}
	if task.Key != "" {
		q.inflight[task.Key] = struct{}{}
	}
	q.observe(OutcomeQueued)
	return nil
}

// Pending reports the number of buffered tasks.
func (q *Queue[T]) Pending() int {
	return len(q.tasks)
}

func (q *Queue[T]) work(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.run(ctx, id, task)
		}
	}
}

func (q *Queue[T]) run(ctx context.Context, worker int, task Task[T]) {
	err := q.handler(ctx, task)
	if err == nil {
		q.release(task.Key)
		q.observe(OutcomeDone)
		return
	}
	q.observe(OutcomeFailed)
	if ctx.Err() != nil {
		q.release(task.Key)
		return
	}
	if task.Attempt >= q.opts.Retries {
		q.opts.Logger.Warn("task abandoned",
			zap.String("queue", q.name),
			zap.String("key", task.Key),
			zap.Int("attempts", task.Attempt+1),
			zap.Error(err))
		q.release(task.Key)
		q.observe(OutcomeAbandoned)
		return
	}
	q.opts.Logger.Debug("task failed, retrying",
		zap.String("queue", q.name),
		zap.Int("worker", worker),
		zap.String("key", task.Key),
		zap.Int("attempt", task.Attempt+1),
		zap.Error(err))

	task.Attempt++
	delay := q.opts.Backoff * time.Duration(task.Attempt)
	q.wg.Add(1)
	go q.retry(ctx, task, delay)
}

// retry re-buffers task after delay. The key stays claimed so duplicates
// offered meanwhile are still rejected.
func (q *Queue[T]) retry(ctx context.Context, task Task[T], delay time.Duration) {
	defer q.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		q.release(task.Key)
		return
	case <-timer.C:
	}
	select {
	case q.tasks <- task:
	case <-ctx.Done():
		q.release(task.Key)
	}
}

func (q *Queue[T]) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()
}

func (q *Queue[T]) observe(o Outcome) {
	if q.opts.Observe != nil {
		q.opts.Observe(o)
	}
}
