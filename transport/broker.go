package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/ros"
)

// DefaultListenerBuffer is the channel depth given to each image listener.
const DefaultListenerBuffer = 10

// Broker is an in-process transport. Images fan out to any number of listeners without
// blocking; a listener that is not keeping up misses images. Results and queries are
// delivered on the caller's goroutine.
type Broker struct {
	logger logging.Logger

	mu        sync.RWMutex
	closed    bool
	listeners map[string]chan ros.Image
	handlers  []ResultHandler
	service   QueryHandler

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBroker returns an open Broker.
func NewBroker(logger logging.Logger) *Broker {
	return &Broker{
		logger:    logger,
		listeners: make(map[string]chan ros.Image),
	}
}

// BrokerStats counts broker traffic.
type BrokerStats struct {
	Published uint64
	Dropped   uint64
	Listeners int
}

// Stats returns current broker statistics.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BrokerStats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
		Listeners: len(b.listeners),
	}
}

// ListenImages registers a listener with the given buffer and returns its channel and a
// function removing it. The channel is closed once the listener is removed or the broker closes.
func (b *Broker) ListenImages(buffer int) (<-chan ros.Image, func()) {
	if buffer < 0 {
		buffer = DefaultListenerBuffer
	}
	ch := make(chan ros.Image, buffer)
	id := uuid.NewString()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.listeners[id] = ch
	b.mu.Unlock()

	b.logger.Debugw("image listener added", "id", id)
	return ch, func() { b.removeListener(id) }
}

func (b *Broker) removeListener(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.listeners[id]; ok {
		close(ch)
		delete(b.listeners, id)
		b.logger.Debugw("image listener removed", "id", id)
	}
}

// PublishImage implements ImagePublisher.
func (b *Broker) PublishImage(ctx context.Context, img ros.Image) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	b.published.Add(1)
	for id, ch := range b.listeners {
		select {
		case ch <- img:
		default:
			b.dropped.Add(1)
			b.logger.Debugw("image listener is slow, dropping image", "id", id)
		}
	}
	return nil
}

// SubscribeResults implements ResultSubscriber.
func (b *Broker) SubscribeResults(handler ResultHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.handlers = append(b.handlers, handler)
	return nil
}

// PublishResult delivers a retrieval notification to every subscribed handler in turn.
func (b *Broker) PublishResult(ctx context.Context, msg ros.RetrievalQueryResult) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := append([]ResultHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

// ServeQueries implements ServiceEndpoint. Only one handler may be served at a time.
func (b *Broker) ServeQueries(handler QueryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.service != nil {
		return errors.New("a query handler is already being served")
	}
	b.service = handler
	return nil
}

// Call implements QueryCaller.
func (b *Broker) Call(ctx context.Context, req ros.VisualizeQueryRequest) (ros.VisualizeQueryResponse, error) {
	b.mu.RLock()
	closed, service := b.closed, b.service
	b.mu.RUnlock()
	if closed {
		return ros.VisualizeQueryResponse{}, ErrClosed
	}
	if service == nil {
		return ros.VisualizeQueryResponse{}, errors.New("no query handler is being served")
	}
	return service(ctx, req)
}

// Close removes every listener, handler and service. Closing twice is a no-op.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.listeners {
		close(ch)
		delete(b.listeners, id)
	}
	b.handlers = nil
	b.service = nil
	return nil
}
