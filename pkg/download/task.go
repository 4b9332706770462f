// Package download implements the transfer scheduling core: tasks, the
// observer primitives that signal their progress and completion, the fixed
// connection pool that executes them, the shared progress board and its
// periodic tracker, and the manager that ties the queues together.
package download

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kmoussa/spacegrab/pkg/contract"
	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
	"github.com/kmoussa/spacegrab/pkg/storage"
)

// Status is a task's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one in-flight or completed transfer of a single remote object.
// A task is created from a Contract, executed by exactly one pool
// connection, and notifies its attached listeners synchronously on every
// progress change.
type Task struct {
	ID       string
	Bucket   string
	Key      string
	Filename string
	Options  map[string]string

	// mu guards the transfer counters: the executing connection writes
	// them and observers read them.
	mu        sync.Mutex
	size      int64
	sizeKnown bool
	bytes     int64
	started   time.Time
	status    Status
	err       error

	// obsMu guards the listener list separately so Notify never holds the
	// counter lock while listeners read the task.
	obsMu     sync.Mutex
	listeners []Listener

	log *slog.Logger
}

// Snapshot is a consistent read of a task's transfer state.
type Snapshot struct {
	ID        string
	Bytes     int64
	Size      int64
	SizeKnown bool
	Started   time.Time
	Status    Status
	Err       error
}

// NewTask builds a task from a contract. log may be nil.
func NewTask(c contract.Contract, log *slog.Logger) *Task {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Task{
		ID:       c.ID,
		Bucket:   c.Bucket,
		Key:      c.Key,
		Filename: c.Filename,
		Options:  c.Options,
		status:   StatusPending,
		log:      log,
	}
}

// Snapshot returns the task's current transfer state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:        t.ID,
		Bytes:     t.bytes,
		Size:      t.size,
		SizeKnown: t.sizeKnown,
		Started:   t.started,
		Status:    t.status,
		Err:       t.err,
	}
}

// BytesTransferred returns the transferred byte count.
func (t *Task) BytesTransferred() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// Size returns the remote object size and whether it is known yet.
func (t *Task) Size() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size, t.sizeKnown
}

// Status returns the task's lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the terminal error of a failed task, nil otherwise.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Attach subscribes l to this task's notifications. Attaching an
// already-present listener is a no-op.
func (t *Task) Attach(l Listener) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for _, existing := range t.listeners {
		if existing == l {
			return
		}
	}
	t.listeners = append(t.listeners, l)
}

// Detach unsubscribes l. Detaching an absent listener is a no-op.
func (t *Task) Detach(l Listener) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Notify invokes Update on every attached listener in attachment order. A
// panicking listener is logged and does not prevent the remaining listeners
// from being notified.
func (t *Task) Notify() {
	t.obsMu.Lock()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.obsMu.Unlock()

	for _, l := range listeners {
		t.notifyOne(l)
	}
}

func (t *Task) notifyOne(l Listener) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("observer update panicked", "task", t.ID, "panic", r)
		}
	}()
	l.Update(t)
}

// Start probes the remote object size, records the start timestamp and runs
// the transfer on the given client handle. A failed size probe is logged and
// leaves the size unset; the transfer is still attempted. Start returns an
// error when the transfer fails or falls short; marking the task failed is
// the caller's decision (retry policy lives in the connection pool).
func (t *Task) Start(ctx context.Context, client storage.Client) error {
	t.mu.Lock()
	probe := !t.sizeKnown
	t.status = StatusRunning
	t.started = time.Now()
	t.mu.Unlock()

	if probe {
		size, err := client.Size(ctx, t.Bucket, t.Key)
		if err != nil {
			t.log.Warn("failed to retrieve object size",
				"task", t.ID, "bucket", t.Bucket, "key", t.Key, "error", err)
		} else {
			t.setSize(size)
		}
	}

	err := client.Download(ctx, storage.Request{
		Bucket:   t.Bucket,
		Key:      t.Key,
		Filename: t.Filename,
		Options:  t.Options,
		Progress: t.progress,
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "task %s", t.ID)
	}

	t.mu.Lock()
	if !t.sizeKnown {
		// The probe failed earlier; the completed transfer defines the size.
		t.size = t.bytes
		t.sizeKnown = true
	}
	short := t.bytes != t.size
	if !short {
		t.status = StatusComplete
	}
	bytes, size := t.bytes, t.size
	t.mu.Unlock()

	if short {
		return pkgerrors.Wrapf(pkgerrors.ErrTransferFailed,
			"task %s: short transfer %d/%d bytes", t.ID, bytes, size)
	}

	t.Notify()
	return nil
}

// progress is the per-chunk transfer callback. It runs on the executing
// connection's goroutine, so per-task notifications are strictly ordered.
func (t *Task) progress(n int64) {
	t.mu.Lock()
	t.bytes += n
	if t.sizeKnown && t.bytes > t.size {
		t.bytes = t.size
	}
	t.mu.Unlock()

	t.Notify()
}

// setSize records the probed size. The size is set at most once.
func (t *Task) setSize(size int64) {
	t.mu.Lock()
	if !t.sizeKnown {
		t.size = size
		t.sizeKnown = true
	}
	t.mu.Unlock()
}

// Fail moves the task to its failed terminal state and notifies listeners.
// If every byte was already accounted for, the error arrived after the final
// chunk and the task is completed instead; it must not land on both the
// complete and failed queues.
func (t *Task) Fail(err error) {
	t.mu.Lock()
	if t.sizeKnown && t.bytes == t.size {
		t.status = StatusComplete
		t.mu.Unlock()
		t.Notify()
		return
	}
	t.status = StatusFailed
	t.err = err
	t.mu.Unlock()

	t.Notify()
}

// markReady records the pending → ready transition.
func (t *Task) markReady() {
	t.mu.Lock()
	t.status = StatusReady
	t.mu.Unlock()
}

// resetForRetry clears the byte counter before another transfer attempt.
func (t *Task) resetForRetry() {
	t.mu.Lock()
	t.bytes = 0
	t.mu.Unlock()
}
