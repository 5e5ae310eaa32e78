package filerelay

import (
	"context"
	"sync"
	"time"
)

// TransferEvent is published on every state change of a transfer.
type TransferEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Key        string        `json:"key,omitempty"`
	State      TransferState `json:"state"`
	Size       int64         `json:"size"`
	URL        string        `json:"url,omitempty"`
	Streamable bool          `json:"streamable,omitempty"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, event TransferEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event TransferEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event TransferEvent) error {
	return f(ctx, event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, TransferEvent) error {
	return nil
}

// AsyncNotifier forwards events to next from a single goroutine, in the order
// they were published, and only logs failures. When the queue is full the
// event is dropped so a slow subscriber never stalls a transfer.
type AsyncNotifier struct {
	next   Notifier
	logger Logger
	queue  chan asyncEvent
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

type asyncEvent struct {
	ctx   context.Context
	event TransferEvent
}

func NewAsyncNotifier(next Notifier, logger Logger) *AsyncNotifier {
	if logger == nil {
		logger = &DefaultLogger{}
	}

	n := &AsyncNotifier{
		next:   next,
		logger: logger,
		queue:  make(chan asyncEvent, DefaultNotifyQueueSize),
		done:   make(chan struct{}),
	}

	go n.run()
	return n
}

func (n *AsyncNotifier) run() {
	defer close(n.done)

	for item := range n.queue {
		if n.next == nil {
			continue
		}
		if err := n.next.Notify(item.ctx, item.event); err != nil {
			n.logger.Error("async transfer notification failed", err, "id", item.event.ID, "state", item.event.State)
		}
	}
}

func (n *AsyncNotifier) Notify(ctx context.Context, event TransferEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrNotifierClosed
	}

	select {
	case n.queue <- asyncEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		n.logger.Error("transfer notification dropped, queue full", "id", event.ID, "state", event.State)
	}

	return nil
}

// Close stops accepting events and waits until the queued ones are delivered.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	<-n.done
}
