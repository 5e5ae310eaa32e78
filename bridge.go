package filerelay

import (
	"context"
	"fmt"
	"sync"
)

// BlockingOp performs synchronous, chunked I/O. It must call report with the
// number of bytes moved by every chunk.
type BlockingOp func(ctx context.Context, report func(n int64)) error

type bridgeTask struct {
	ctx     context.Context
	op      BlockingOp
	updates chan int64
	done    chan error
}

// Bridge runs blocking transfer operations on a fixed pool of workers and
// hands their progress back to the goroutine that called Run.
type Bridge struct {
	mu      sync.RWMutex
	closed  bool
	tasks   chan *bridgeTask
	quit    chan struct{}
	wg      sync.WaitGroup
	workers int
	buffer  int
}

type BridgeOption func(*Bridge)

// WithProgressBuffer sets how many progress deltas may be queued between a
// worker and its caller before the worker blocks.
func WithProgressBuffer(size int) BridgeOption {
	return func(b *Bridge) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithQueueSize bounds the number of tasks waiting for a free worker.
func WithQueueSize(size int) BridgeOption {
	return func(b *Bridge) {
		if size >= 0 {
			b.tasks = make(chan *bridgeTask, size)
		}
	}
}

func NewBridge(workers int, opts ...BridgeOption) *Bridge {
	if workers <= 0 {
		workers = DefaultBridgeWorkers
	}

	b := &Bridge{
		tasks:   make(chan *bridgeTask, workers),
		quit:    make(chan struct{}),
		workers: workers,
		buffer:  64,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.work()
	}

	return b
}

// Workers returns the size of the pool.
func (b *Bridge) Workers() int {
	return b.workers
}

func (b *Bridge) work() {
	defer b.wg.Done()
	for {
		select {
		case <-b.quit:
			b.drain()
			return
		case task := <-b.tasks:
			task.done <- b.execute(task)
		}
	}
}

// drain fails tasks that were queued but never picked up before Close.
func (b *Bridge) drain() {
	for {
		select {
		case task := <-b.tasks:
			close(task.updates)
			task.done <- ErrBridgeClosed
		default:
			return
		}
	}
}

func (b *Bridge) execute(task *bridgeTask) (err error) {
	defer close(task.updates)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transfer bridge: operation panicked: %v", r)
		}
	}()

	report := func(n int64) {
		if n <= 0 {
			return
		}
		task.updates <- n
	}

	return task.op(task.ctx, report)
}

// Run executes op on the worker pool and blocks until it finishes. Progress
// deltas reported by op are accumulated and passed to onProgress on the
// calling goroutine, in the order they were reported. All updates are
// delivered before Run returns.
func (b *Bridge) Run(ctx context.Context, op BlockingOp, onProgress func(total int64)) error {
	if op == nil {
		return fmt.Errorf("transfer bridge: operation is nil")
	}

	task := &bridgeTask{
		ctx:     ctx,
		op:      op,
		updates: make(chan int64, b.buffer),
		done:    make(chan error, 1),
	}

	if err := b.submit(ctx, task); err != nil {
		return err
	}

	var total int64
	for n := range task.updates {
		total += n
		if onProgress != nil {
			onProgress(total)
		}
	}

	return <-task.done
}

func (b *Bridge) submit(ctx context.Context, task *bridgeTask) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBridgeClosed
	}

	select {
	case b.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for the workers to exit. Operations
// already running are allowed to finish.
func (b *Bridge) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.quit)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
