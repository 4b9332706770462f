package download

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
)

// defaultTrackerInterval is the redraw period when none is configured.
const defaultTrackerInterval = 2 * time.Second

// clearScreen moves the cursor home and clears the display so each render
// replaces the previous one.
const clearScreen = "\033[H\033[2J"

// Tracker periodically renders a snapshot of the progress board to an output
// sink. It runs on its own goroutine, independent of the worker connections.
type Tracker struct {
	board    *Board
	interval time.Duration
	out      io.Writer
	log      *slog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewTracker returns a tracker rendering board to out every interval.
// interval 0 means 2 seconds; out nil means stdout; log may be nil.
func NewTracker(board *Board, interval time.Duration, out io.Writer, log *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = defaultTrackerInterval
	}
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		board:    board,
		interval: interval,
		out:      out,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the render loop. Subsequent calls are no-ops.
func (t *Tracker) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.loop()
}

// Stop signals the loop to exit after its current iteration and waits up to
// timeout for it to do so. Safe to call concurrently with a render and safe
// to call more than once.
func (t *Tracker) Stop(timeout time.Duration) error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	if !t.started.Load() {
		return nil
	}

	select {
	case <-t.done:
		return nil
	case <-time.After(timeout):
		t.log.Warn("progress tracker did not stop in time", "timeout", timeout)
		return pkgerrors.ErrTrackerJoinTimeout
	}
}

func (t *Tracker) loop() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.render()
		}
	}
}

// render draws one snapshot of the board. Entries are sorted by task id so
// lines do not jump between redraws.
func (t *Tracker) render() {
	snapshot := t.board.Snapshot()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(clearScreen)
	sb.WriteString("Progress:\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "%s: %s\n", id, snapshot[id])
	}

	if _, err := io.WriteString(t.out, sb.String()); err != nil {
		t.log.Warn("failed to render progress", "error", err)
	}
}
