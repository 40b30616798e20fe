// Package publisher decouples event emission from persistence. Synchronous
// by default; an async buffer absorbs bursts at the cost of dropping under
// sustained overload.
package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	id "registrar/pkg/domain"
	audit "registrar/pkg/platform/audit"
)

// ErrBufferFull is returned in async mode when the buffer cannot take
// another event. Audit writes never block request handling.
var ErrBufferFull = errors.New("audit buffer full")

type Publisher struct {
	store audit.Store

	buffer chan audit.Event
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with the
// given buffer capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records one event, stamping the time if the caller did not. In async
// mode a full buffer drops the event rather than stalling the caller.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the events recorded for one request.
func (p *Publisher) List(ctx context.Context, requestID id.RequestID) ([]audit.Event, error) {
	return p.store.ListByRequest(ctx, requestID)
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		// Detached context: the emitting request may be long gone.
		_ = p.store.Append(context.Background(), event)
	}
}

// Close drains the buffer and stops the background writer.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}
