package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/brickd/internal/groutine"
	"github.com/srg/brickd/internal/queue"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Dispatcher
type State uint32

const (
	StateIdle     State = iota // never started
	StateRunning               // worker is consuming the queue
	StateDraining              // stop requested, waiting for the worker to observe the sentinel
	StateStopped               // worker exited; Start may be called again
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Item is anything a Dispatcher can carry. Exactly one value, the shutdown
// sentinel, reports true from IsShutdown.
type Item interface {
	IsShutdown() bool
}

// Handler connects a Dispatcher to the transport.
type Handler[T Item] interface {
	// Send hands item to the transport. A nil error means the transport took
	// it and will acknowledge it later; any error means no acknowledgment is
	// coming.
	Send(item T) error

	// Acknowledged runs for the in-flight item when its acknowledgment
	// arrives, before the gate opens for the next item.
	Acknowledged(item T)
}

// Option configures a Dispatcher
type Option func(*options)

type options struct {
	logger  *logrus.Logger
	limiter *rate.Limiter
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLimiter paces sends: the worker waits on l before each Send
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// Dispatcher is a single worker that drains a bounded queue under gate
// discipline: at most one item is in flight at the transport at any time.
//
// The same state machine serves a single hub (T = command.Command) and a
// group of hubs sharing one worker (T = command.Envelope).
type Dispatcher[T Item] struct {
	name     string
	queue    *queue.Deque[T]
	gate     *Gate
	handler  Handler[T]
	shutdown T
	logger   *logrus.Logger
	limiter  *rate.Limiter

	mu     sync.Mutex // serializes Start/Stop
	state  atomic.Uint32
	done   <-chan struct{}
	cancel context.CancelFunc

	inflightMu  sync.Mutex
	inflight    T
	hasInflight bool
}

// New creates an idle Dispatcher. shutdown is the sentinel value Stop pushes
// to the head of the queue.
func New[T Item](name string, capacity int, shutdown T, handler Handler[T], opts ...Option) *Dispatcher[T] {
	if !shutdown.IsShutdown() {
		panic("dispatch: shutdown sentinel must report IsShutdown")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}

	return &Dispatcher[T]{
		name:     name,
		queue:    queue.New[T](capacity),
		gate:     NewGate(),
		handler:  handler,
		shutdown: shutdown,
		logger:   o.logger,
		limiter:  o.limiter,
	}
}

// Start spawns the worker and returns once it is consuming.
// Returns ErrAlreadyStarted if the worker is running.
func (d *Dispatcher[T]) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.State(); st == StateRunning || st == StateDraining {
		d.logger.WithField("dispatcher", d.name).Warn("Command processing has already been started")
		return ErrAlreadyStarted
	}

	d.logger.WithField("dispatcher", d.name).Info("Starting command processing...")

	// a previous run may have left the permit taken by an unacknowledged write
	d.clearInflight()
	d.gate.Release()

	// Enqueue accepts items once the state is Running
	d.queue.Clear()

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	ready := make(chan struct{})
	d.state.Store(uint32(StateRunning))
	d.done = groutine.Go(ctx, "dispatcher-"+d.name, func(ctx context.Context) {
		d.run(ctx, ready)
	})

	<-ready
	return nil
}

// Stop makes the worker exit promptly: the backlog is discarded, the
// sentinel is put at the head of the queue and the gate is force-released in
// case the worker waits for an acknowledgment that will never come. Stop
// returns after the worker has exited. Returns ErrNotRunning if it was not
// running.
//
// Stop must not be called from a Handler method.
func (d *Dispatcher[T]) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() != StateRunning {
		d.logger.WithField("dispatcher", d.name).Warn("Command processing has not been started")
		return ErrNotRunning
	}

	d.logger.WithFields(logrus.Fields{
		"dispatcher": d.name,
		"queue_len":  d.queue.Len(),
	}).Info("Stopping command processing...")

	d.state.Store(uint32(StateDraining))
	d.queue.Clear()
	d.queue.PushFront(d.shutdown)
	d.gate.ForceRelease()
	d.cancel()

	<-d.done

	d.clearInflight()
	d.state.Store(uint32(StateStopped))
	d.logger.WithField("dispatcher", d.name).Info("Command processing stopped")
	return nil
}

// Enqueue appends item to the queue without blocking.
// Returns ErrNotRunning if the worker is not running and ErrQueueFull if the
// queue has no room; the item is dropped in both cases.
func (d *Dispatcher[T]) Enqueue(item T) error {
	if d.State() != StateRunning {
		return ErrNotRunning
	}
	if !d.queue.TryPush(item) {
		d.logger.WithFields(logrus.Fields{
			"dispatcher": d.name,
			"capacity":   d.queue.Cap(),
		}).Warn("Command queue full, dropping command")
		return ErrQueueFull
	}
	return nil
}

// Acknowledge completes the in-flight item: the handler's Acknowledged hook
// runs and the gate opens for the next item. It reports false if nothing is in
// flight, which happens for an acknowledgment that outlived a Stop.
func (d *Dispatcher[T]) Acknowledge() bool {
	return d.AcknowledgeIf(func(T) bool { return true })
}

// AcknowledgeIf is Acknowledge restricted to an in-flight item accepted by
// match. A mismatch leaves the gate closed.
func (d *Dispatcher[T]) AcknowledgeIf(match func(T) bool) bool {
	item, ok := d.takeInflight(match)
	if !ok {
		d.logger.WithField("dispatcher", d.name).Warn("Ignoring acknowledgment with no matching command in flight")
		return false
	}

	d.handler.Acknowledged(item)
	d.gate.Release()
	return true
}

// Abandon gives up on the in-flight item: the transport accepted it but
// later reported that it never completed. The gate opens without running the
// Acknowledged hook.
func (d *Dispatcher[T]) Abandon() bool {
	return d.AbandonIf(func(T) bool { return true })
}

// AbandonIf is Abandon restricted to an in-flight item accepted by match
func (d *Dispatcher[T]) AbandonIf(match func(T) bool) bool {
	if _, ok := d.takeInflight(match); !ok {
		return false
	}
	d.logger.WithField("dispatcher", d.name).Warn("Command in flight failed at the transport, releasing gate")
	d.gate.Release()
	return true
}

func (d *Dispatcher[T]) takeInflight(match func(T) bool) (T, bool) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()

	var zero T
	if !d.hasInflight || !match(d.inflight) {
		return zero, false
	}
	item := d.inflight
	d.inflight = zero
	d.hasInflight = false
	return item, true
}

// Inflight returns the item awaiting acknowledgment, if any
func (d *Dispatcher[T]) Inflight() (T, bool) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	return d.inflight, d.hasInflight
}

// State returns the current lifecycle state
func (d *Dispatcher[T]) State() State {
	return State(d.state.Load())
}

// QueueLen returns the number of queued items
func (d *Dispatcher[T]) QueueLen() int {
	return d.queue.Len()
}

// QueueMetrics returns the queue counters
func (d *Dispatcher[T]) QueueMetrics() queue.Metrics {
	return d.queue.GetMetrics()
}

func (d *Dispatcher[T]) run(ctx context.Context, ready chan<- struct{}) {
	logger := d.logger.WithField("dispatcher", d.name)
	defer logger.Debugf("%s: exiting", groutine.GetName(ctx))

	close(ready)

	for {
		// wait for the previous write to be acknowledged
		d.gate.Acquire()

		item := d.queue.Pop()

		if item.IsShutdown() {
			logger.WithField("discarded", d.queue.Clear()).Info("Shutdown command received, command processing exits")
			return
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				logger.WithField("error", err).Debug("Write pacing interrupted")
				d.gate.Release()
				continue
			}
		}

		d.setInflight(item)
		if err := d.send(ctx, item); err != nil {
			// nothing was sent, no acknowledgment will arrive
			d.clearInflight()
			logger.WithField("error", err).Error("Command send failed")
			d.gate.Release()
		}
	}
}

func (d *Dispatcher[T]) send(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: send panicked: %v", groutine.GetName(ctx), r)
		}
	}()
	return d.handler.Send(item)
}

func (d *Dispatcher[T]) setInflight(item T) {
	d.inflightMu.Lock()
	d.inflight = item
	d.hasInflight = true
	d.inflightMu.Unlock()
}

func (d *Dispatcher[T]) clearInflight() {
	d.inflightMu.Lock()
	var zero T
	d.inflight = zero
	d.hasInflight = false
	d.inflightMu.Unlock()
}
