package download

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Listener receives a notification whenever a task's state changes.
type Listener interface {
	Update(t *Task)
}

// Notifier is the observable capability implemented by Task.
type Notifier interface {
	Attach(l Listener)
	Detach(l Listener)
	Notify()
}

// CompletionObserver fires its callback exactly once, when a task's
// transferred bytes first equal its known size. Repeated notifications at or
// after the completion boundary do not re-fire.
type CompletionObserver struct {
	callback func(*Task)
	fired    atomic.Bool
}

// NewCompletionObserver returns a CompletionObserver invoking callback on
// completion.
func NewCompletionObserver(callback func(*Task)) *CompletionObserver {
	return &CompletionObserver{callback: callback}
}

// Update checks for completion. If the size is not known yet the comparison
// is always false.
func (o *CompletionObserver) Update(t *Task) {
	snap := t.Snapshot()
	if !snap.SizeKnown || snap.Bytes != snap.Size {
		return
	}
	if o.fired.CompareAndSwap(false, true) && o.callback != nil {
		o.callback(t)
	}
}

// FailureObserver fires its callback exactly once, when a task reaches the
// failed terminal state.
type FailureObserver struct {
	callback func(*Task)
	fired    atomic.Bool
}

// NewFailureObserver returns a FailureObserver invoking callback on failure.
func NewFailureObserver(callback func(*Task)) *FailureObserver {
	return &FailureObserver{callback: callback}
}

// Update checks for the failed state.
func (o *FailureObserver) Update(t *Task) {
	if t.Status() != StatusFailed {
		return
	}
	if o.fired.CompareAndSwap(false, true) && o.callback != nil {
		o.callback(t)
	}
}

// ProgressObserver recomputes percentage and throughput on every update and
// writes a formatted status line into the shared board, keyed by task id.
type ProgressObserver struct {
	board *Board

	// now is swappable for tests.
	now func() time.Time
}

// NewProgressObserver returns a ProgressObserver writing to board.
func NewProgressObserver(board *Board) *ProgressObserver {
	return &ProgressObserver{board: board, now: time.Now}
}

// Update renders the task's current progress onto the board. The percentage
// is omitted while the size is unknown or zero.
func (o *ProgressObserver) Update(t *Task) {
	snap := t.Snapshot()

	var rate float64
	if elapsed := o.now().Sub(snap.Started).Seconds(); elapsed > 0 {
		rate = float64(snap.Bytes) / elapsed
	}

	var line string
	if snap.SizeKnown && snap.Size > 0 {
		percentage := float64(snap.Bytes) / float64(snap.Size) * 100
		line = fmt.Sprintf("transferred %.2f%%  %s/s", percentage, formatBytes(int64(rate)))
	} else {
		line = fmt.Sprintf("transferred %s  %s/s", formatBytes(snap.Bytes), formatBytes(int64(rate)))
	}

	o.board.Set(snap.ID, line)
}
