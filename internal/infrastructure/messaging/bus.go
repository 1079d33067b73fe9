// Package messaging is the in-process event spine of the arena. Command
// handlers publish domain events after commit; the projection and
// notification listeners consume them on a bounded worker pool. A handler
// that keeps failing retries with backoff and finally lands in a small
// dead-letter buffer for inspection. Cross-instance fan-out is not this
// package's job; socket traffic rides the redis room relay.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/retry"
)

// ErrBusClosed is returned for publishes and subscriptions after Close.
var ErrBusClosed = errors.New("event bus is closed")

// DeadLetter records an event a handler could not process after all retries.
type DeadLetter struct {
	Event    shared.Event
	Handler  string
	Err      error
	Attempts int
	FailedAt time.Time
}

type subscription struct {
	name    string
	handler shared.EventHandler
}

// Bus fans domain events out to registered handlers. Delivery is
// asynchronous: Publish returns once the event is queued, and each handler
// runs on its own worker slot so one slow projection cannot stall the
// settlement path that published the event.
type Bus struct {
	mu       sync.RWMutex
	subs     map[shared.EventType][]subscription
	catchAll []subscription
	closed   bool

	workers chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	retrier        *retry.Retrier
	handlerTimeout time.Duration

	deadMu    sync.Mutex
	dead      []DeadLetter
	deadLimit int

	log *logger.Logger
}

var _ shared.EventBus = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithWorkers bounds the number of handlers running at once.
func WithWorkers(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.workers = make(chan struct{}, n)
		}
	}
}

// WithHandlerTimeout bounds a single handler attempt.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

// WithRetrier overrides the delivery retry policy.
func WithRetrier(r *retry.Retrier) Option {
	return func(b *Bus) {
		if r != nil {
			b.retrier = r
		}
	}
}

// WithDeadLetterLimit caps the dead-letter buffer; older entries fall off.
func WithDeadLetterLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.deadLimit = n
		}
	}
}

// deliveryAttempts covers transient projection failures, a refresh racing a
// DB restart for example, without holding a worker slot for long.
const deliveryAttempts = 3

// New creates a running bus. Close releases its workers.
func New(log *logger.Logger, opts ...Option) *Bus {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:           make(map[shared.EventType][]subscription),
		workers:        make(chan struct{}, 8),
		ctx:            ctx,
		cancel:         cancel,
		handlerTimeout: 30 * time.Second,
		deadLimit:      256,
		log:            log.With(logger.Component("eventbus")),
	}
	b.retrier = retry.New(
		retry.WithMaxAttempts(deliveryAttempts),
		retry.WithInitialDelay(100*time.Millisecond),
		retry.WithMaxDelay(5*time.Second),
		retry.WithRetryIf(func(err error) bool { return err != nil }),
	)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register subscribes a named handler to one event type. The name shows up
// in logs and dead-letter entries.
func (b *Bus) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if name == "" {
		name = string(eventType)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.subs[eventType] = append(b.subs[eventType], subscription{name: name, handler: handler})
	b.log.Debug("handler registered",
		logger.String("event_type", string(eventType)),
		logger.String("handler", name),
	)
	return nil
}

// Subscribe registers an anonymous handler for one event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.Register(eventType, "", handler)
}

// SubscribeAll registers a handler that sees every event, the audit trail
// for example.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.catchAll = append(b.catchAll, subscription{name: "catch_all", handler: handler})
	return nil
}

// Publish queues the event for every matching handler and returns. Events
// published after Close are dropped with ErrBusClosed so a late goroutine
// cannot resurrect the worker pool.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := make([]subscription, 0, len(b.subs[event.EventType()])+len(b.catchAll))
	targets = append(targets, b.subs[event.EventType()]...)
	targets = append(targets, b.catchAll...)
	b.mu.RUnlock()

	for _, s := range targets {
		b.wg.Add(1)
		go func(s subscription) {
			defer b.wg.Done()
			select {
			case b.workers <- struct{}{}:
				defer func() { <-b.workers }()
			case <-b.ctx.Done():
				return
			}
			b.deliver(s, event)
		}(s)
	}
	return nil
}

// deliver runs one handler with retries; exhaustion goes to the dead-letter
// buffer.
func (b *Bus) deliver(s subscription, event shared.Event) {
	err := b.retrier.Do(b.ctx, func(context.Context) error {
		return b.attempt(s, event)
	})
	if err == nil || b.ctx.Err() != nil {
		return
	}

	b.deadMu.Lock()
	if len(b.dead) >= b.deadLimit {
		b.dead = b.dead[1:]
	}
	b.dead = append(b.dead, DeadLetter{
		Event:    event,
		Handler:  s.name,
		Err:      err,
		Attempts: deliveryAttempts,
		FailedAt: time.Now().UTC(),
	})
	b.deadMu.Unlock()

	b.log.Error("event handler exhausted retries",
		logger.String("event_type", string(event.EventType())),
		logger.String("handler", s.name),
		logger.Err(err),
	)
}

// attempt runs the handler once, bounded by the handler timeout. Panics are
// turned into errors so one bad projection cannot take the process down.
// A running handler is never abandoned: Close waits for it, bounded by the
// same timeout.
func (b *Bus) attempt(s subscription, event shared.Event) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler %s panicked: %v", s.name, r)
			}
		}()
		done <- s.handler(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(b.handlerTimeout):
		return fmt.Errorf("handler %s timed out after %v", s.name, b.handlerTimeout)
	}
}

// DeadLetters returns a copy of the dead-letter buffer.
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	out := make([]DeadLetter, len(b.dead))
	copy(out, b.dead)
	return out
}

// Close stops accepting events and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.log.Info("event bus closed")
	return nil
}
