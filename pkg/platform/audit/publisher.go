package audit

import (
	"context"
	"sync"
)

// Publisher records audit events either synchronously or through a buffered
// background worker. Close drains any buffered events before returning.
type Publisher struct {
	store Store

	mu     sync.Mutex
	inbox  chan Event
	done   chan struct{}
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with the given
// channel capacity. Emit never blocks on store latency; a full buffer falls
// back to a synchronous append.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records one event. In sync mode the append happens before return; in
// async mode the event is queued for the background worker.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	// The mutex is held across the send so Close cannot close the inbox
	// between the closed check and the enqueue.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		p.mu.Unlock()
		return nil
	default:
		p.mu.Unlock()
		// Buffer full; do not drop audit records.
		return p.store.Append(ctx, event)
	}
}

// List returns the audit trail for one process.
func (p *Publisher) List(ctx context.Context, processID string) ([]Event, error) {
	return p.store.ListByProcess(ctx, processID)
}

// Close stops the background worker, draining any queued events first.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()
	<-p.done
}

func (p *Publisher) drain() {
	for event := range p.inbox {
		// Context is background: the originating request may be long gone.
		_ = p.store.Append(context.Background(), event)
	}
	close(p.done)
}
