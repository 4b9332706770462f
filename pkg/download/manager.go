package download

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kmoussa/spacegrab/pkg/contract"
	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
	"github.com/kmoussa/spacegrab/pkg/queue"
	"github.com/kmoussa/spacegrab/pkg/storage"
)

// Options configure a Manager.
type Options struct {
	// Workers is the connection pool size.
	Workers int
	// PopWait bounds each connection's ready-queue pop.
	PopWait time.Duration
	// JoinTimeout bounds the pool and tracker joins during Stop.
	JoinTimeout time.Duration
	// TrackerInterval is the progress redraw period.
	TrackerInterval time.Duration
	// RetryAttempts is the number of additional transfer attempts after a
	// failure. The default, 0, fails a task on its first transfer error.
	RetryAttempts int
	// TrackerOutput is the progress display sink. nil means stdout.
	TrackerOutput io.Writer
	// Logger receives scheduler events. nil discards them.
	Logger *slog.Logger
}

// Manager orchestrates the transfer lifecycle: contracts are submitted onto
// the pending queue, drained to the ready queue with observers attached, and
// executed by the connection pool. Completed and failed tasks land on their
// respective queues; a task is on exactly one queue at a time.
type Manager struct {
	opts Options
	log  *slog.Logger

	pending  *queue.Queue[*Task]
	ready    *queue.Queue[*Task]
	complete *queue.Queue[*Task]
	failed   *queue.Queue[*Task]

	board   *Board
	pool    *Pool
	tracker *Tracker

	submitted atomic.Int64
	settled   atomic.Int64
}

// NewManager builds a manager whose pool dials one client per worker from
// dialer.
func NewManager(ctx context.Context, dialer storage.Dialer, opts Options) (*Manager, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	m := &Manager{
		opts:     opts,
		log:      log,
		pending:  queue.New[*Task](),
		ready:    queue.New[*Task](),
		complete: queue.New[*Task](),
		failed:   queue.New[*Task](),
		board:    NewBoard(),
	}

	pool, err := NewPool(ctx, dialer, m.ready, PoolOptions{
		Workers:       opts.Workers,
		PopWait:       opts.PopWait,
		JoinTimeout:   opts.JoinTimeout,
		RetryAttempts: opts.RetryAttempts,
	}, log)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build connection pool")
	}
	m.pool = pool
	m.tracker = NewTracker(m.board, opts.TrackerInterval, opts.TrackerOutput, log)

	return m, nil
}

// Submit wraps the contract in a Task and places it on the pending queue.
// Safe to call at any time; a contract submitted while Start's drain is in
// flight either joins that drain or stays pending for the next one — it is
// never lost.
func (m *Manager) Submit(c contract.Contract) *Task {
	task := NewTask(c, m.log)
	m.submitted.Add(1)
	m.pending.Push(task)
	m.log.Debug("contract submitted", "task", task.ID, "key", task.Key)
	return task
}

// Start drains the current pending queue, attaching the completion, progress
// and failure observers to each task before moving it to the ready queue,
// then starts the progress tracker and the connection pool. Calling Start
// again drains tasks submitted since the previous call.
func (m *Manager) Start(ctx context.Context) {
	drained := 0
	for {
		task, ok := m.pending.TryPop()
		if !ok {
			break
		}
		m.attachObservers(task)
		task.markReady()
		m.ready.Push(task)
		drained++
	}
	m.log.Debug("pending queue drained", "tasks", drained)

	m.tracker.Start()
	m.pool.Start(ctx)
}

// Stop stops the connection pool first (no new tasks claimed, in-flight
// transfers finish under the bounded join), then the progress tracker. Both
// stops are attempted regardless of individual failures; Stop is best-effort
// cleanup, not transactional.
func (m *Manager) Stop() {
	if err := m.pool.Stop(); err != nil {
		m.log.Error("connection pool stop", "error", err)
	}
	if err := m.tracker.Stop(m.joinTimeout()); err != nil {
		m.log.Error("progress tracker stop", "error", err)
	}
}

// Wait blocks until every submitted task has settled (completed or failed)
// or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.settled.Load() >= m.submitted.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Complete returns the queue of completed tasks.
func (m *Manager) Complete() *queue.Queue[*Task] {
	return m.complete
}

// Failed returns the queue of failed tasks.
func (m *Manager) Failed() *queue.Queue[*Task] {
	return m.failed
}

// Board returns the shared progress board.
func (m *Manager) Board() *Board {
	return m.board
}

func (m *Manager) attachObservers(task *Task) {
	task.Attach(NewCompletionObserver(func(t *Task) {
		m.complete.Push(t)
		m.settled.Add(1)
		m.log.Info("download complete", "task", t.ID, "key", t.Key)
	}))
	task.Attach(NewProgressObserver(m.board))
	task.Attach(NewFailureObserver(func(t *Task) {
		m.failed.Push(t)
		m.settled.Add(1)
		m.log.Error("download failed", "task", t.ID, "key", t.Key, "error", t.Err())
	}))
}

func (m *Manager) joinTimeout() time.Duration {
	if m.opts.JoinTimeout > 0 {
		return m.opts.JoinTimeout
	}
	return defaultJoinTimeout
}
