package parley

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
)

type job struct {
	ctx       context.Context
	sessionID string
	run       func(context.Context) (*Turn, error)
	done      chan Result
}

// dispatcher runs turns on a fixed set of workers. A session always maps to the
// same worker, so its turns run in submission order and never overlap.
type dispatcher struct {
	queues []chan job
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newDispatcher(workers, size int, logger *slog.Logger) *dispatcher {
	d := &dispatcher{queues: make([]chan job, workers), logger: logger}
	for i := range d.queues {
		d.queues[i] = make(chan job, size)
	}
	return d
}

func (d *dispatcher) start() {
	for i, q := range d.queues {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range q {
				turn, err := j.run(j.ctx)
				if err != nil {
					d.logger.Debug("Turn failed", "worker", i, "session_id", j.sessionID, "err", err)
				}
				j.done <- Result{Turn: turn, Err: err}
			}
		}()
	}
}

func (d *dispatcher) shard(sessionID string) chan job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return d.queues[h.Sum32()%uint32(len(d.queues))]
}

// submit queues a turn, blocking while the session's queue is full.
// The turn itself outlives ctx cancellation; ctx only bounds the wait.
func (d *dispatcher) submit(ctx context.Context, sessionID string, run func(context.Context) (*Turn, error)) (<-chan Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrNotRunning
	}
	j := job{
		ctx:       context.WithoutCancel(ctx),
		sessionID: sessionID,
		run:       run,
		done:      make(chan Result, 1),
	}
	select {
	case d.shard(sessionID) <- j:
		return j.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stop rejects new turns and waits for the queued ones to finish.
func (d *dispatcher) stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
