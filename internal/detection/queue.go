package detection

import (
	"context"
	"sync"

	"github.com/reowatch/reowatch/internal/logger"
)

// task is a unit of work run by the serial queue
type task struct {
	name string
	fn   func(ctx context.Context)
}

// serialQueue runs submitted tasks one at a time in submission order.
// Submit never blocks, so notification callbacks return immediately.
type serialQueue struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []task
	closed  bool

	wake chan struct{}
	done chan struct{}
	log  logger.Logger
}

func newSerialQueue(log logger.Logger) *serialQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &serialQueue{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		log:    log,
	}
	go q.run()
	return q
}

// Submit appends a task. It reports false once the queue is closed.
func (q *serialQueue) Submit(name string, fn func(ctx context.Context)) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, task{name: name, fn: fn})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *serialQueue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if len(q.pending) == 0 || q.ctx.Err() != nil {
				q.mu.Unlock()
				break
			}
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()

			q.log.Trace("running task", logger.String("task", next.name))
			next.fn(q.ctx)
		}
	}
}

// Close cancels the running task's context, drops pending tasks and waits
// for the worker to exit.
func (q *serialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	<-q.done

	if dropped > 0 {
		q.log.Debug("dropped queued tasks on close", logger.Int("count", dropped))
	}
}
