package download

import (
	"context"
	"log/slog"
	"sync"
	"time"

	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
	"github.com/kmoussa/spacegrab/pkg/queue"
	"github.com/kmoussa/spacegrab/pkg/storage"
)

const (
	defaultPopWait     = 500 * time.Millisecond
	defaultJoinTimeout = 30 * time.Second
)

// Connection is one worker execution unit bound to exactly one storage
// client handle. It claims tasks from the shared ready queue and executes
// them sequentially.
type Connection struct {
	id      int
	client  storage.Client
	ready   *queue.Queue[*Task]
	popWait time.Duration
	retries int
	log     *slog.Logger
}

// run is the claim loop. The connection keeps claiming while the pool runs;
// pop timeouts only re-check for shutdown, so a non-empty ready queue is
// always drained ahead of idle exits. Once stop is signaled no new task is
// claimed; the in-flight task finishes first.
func (c *Connection) run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			c.log.Debug("connection exiting", "connection", c.id)
			return
		default:
		}

		task, ok := c.ready.Pop(c.popWait)
		if !ok {
			continue
		}
		c.execute(ctx, task)
	}
}

// execute runs one task to a terminal state, applying the retry policy.
func (c *Connection) execute(ctx context.Context, task *Task) {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.log.Warn("retrying transfer", "task", task.ID, "attempt", attempt)
			task.resetForRetry()
		}
		if err = task.Start(ctx, c.client); err == nil {
			return
		}
		c.log.Error("transfer failed",
			"task", task.ID, "connection", c.id, "error", err)
		if snap := task.Snapshot(); snap.SizeKnown && snap.Bytes == snap.Size {
			// Every byte is accounted for; retrying would re-run a
			// finished transfer. Fail resolves this to completion.
			break
		}
	}
	task.Fail(err)
}

// PoolOptions configure a connection pool.
type PoolOptions struct {
	// Workers is the number of connections; this bounds maximum transfer
	// concurrency. 0 means 1.
	Workers int
	// PopWait bounds each ready-queue pop.
	PopWait time.Duration
	// JoinTimeout bounds the wait for connections to exit during Stop.
	JoinTimeout time.Duration
	// RetryAttempts is the number of additional transfer attempts after a
	// failure. 0 disables retries.
	RetryAttempts int
}

// Pool owns a fixed set of connections created at construction, each with an
// independently dialed client handle.
type Pool struct {
	conns       []*Connection
	joinTimeout time.Duration
	log         *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPool dials one client handle per worker and builds the connection set.
// Handles already dialed are closed again if a later dial fails.
func NewPool(ctx context.Context, dialer storage.Dialer, ready *queue.Queue[*Task], opts PoolOptions, log *slog.Logger) (*Pool, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PopWait <= 0 {
		opts.PopWait = defaultPopWait
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	p := &Pool{
		joinTimeout: opts.JoinTimeout,
		log:         log,
		stopCh:      make(chan struct{}),
	}

	for i := 0; i < opts.Workers; i++ {
		client, err := dialer.Dial(ctx)
		if err != nil {
			p.closeClients()
			return nil, pkgerrors.Wrapf(err, "dial client for connection %d", i)
		}
		p.conns = append(p.conns, &Connection{
			id:      i,
			client:  client,
			ready:   ready,
			popWait: opts.PopWait,
			retries: opts.RetryAttempts,
			log:     log,
		})
	}

	return p, nil
}

// Size returns the number of connections.
func (p *Pool) Size() int {
	return len(p.conns)
}

// Start launches all connections. Subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, c := range p.conns {
			p.wg.Add(1)
			go func(c *Connection) {
				defer p.wg.Done()
				c.run(ctx, p.stopCh)
			}(c)
		}
		p.log.Debug("connection pool started", "connections", len(p.conns))
	})
}

// Stop signals all connections to stop claiming work and waits up to the
// join timeout for them to exit. In-flight transfers run to completion.
// Client handles are closed only after a clean join.
func (p *Pool) Stop() error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	joined := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(p.joinTimeout):
		p.log.Warn("connection pool join timed out", "timeout", p.joinTimeout)
		return pkgerrors.ErrPoolJoinTimeout
	}

	p.closeClients()
	p.log.Debug("connection pool stopped")
	return nil
}

func (p *Pool) closeClients() {
	p.closeOnce.Do(func() {
		for _, c := range p.conns {
			if err := c.client.Close(); err != nil {
				p.log.Warn("failed to close client", "connection", c.id, "error", err)
			}
		}
	})
}
