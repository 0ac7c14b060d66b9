package queue

import (
	"sync"
	"sync/atomic"
)

// Deque is a bounded FIFO with one extra operation: PushFront, which inserts
// at the head so an item can overtake the backlog.
//
// Producers never block: TryPush fails when the deque is full. The consumer
// blocks in Pop until an item is available.
//
// # Example
//
//	q := queue.New[string](2)
//	q.TryPush("a")
//	q.TryPush("b")
//	q.TryPush("c")   // false, full
//	q.PushFront("x") // "b" is dropped to make room
//	q.Pop()          // "x"
//	q.Pop()          // "a"
type Deque[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	size   int
	notify chan struct{} // wakes a blocked Pop; holds at most one token

	metrics Metrics
}

// New creates a Deque with the given capacity.
func New[T any](capacity int) *Deque[T] {
	if capacity <= 0 {
		panic("queue: capacity must be > 0")
	}
	return &Deque[T]{
		items:  make([]T, capacity),
		notify: make(chan struct{}, 1),
	}
}

// TryPush appends v at the tail. Returns false if the deque is full.
func (q *Deque[T]) TryPush(v T) bool {
	q.mu.Lock()
	if q.size == len(q.items) {
		q.mu.Unlock()
		q.metrics.addRejected()
		return false
	}
	q.items[(q.head+q.size)%len(q.items)] = v
	q.size++
	q.mu.Unlock()

	q.metrics.addPushed()
	q.signal()
	return true
}

// PushFront inserts v at the head and always succeeds. If the deque is full
// the tail item is discarded; the return value reports whether that happened.
func (q *Deque[T]) PushFront(v T) (dropped bool) {
	q.mu.Lock()
	if q.size == len(q.items) {
		var zero T
		q.items[(q.head+q.size-1)%len(q.items)] = zero
		q.size--
		dropped = true
	}
	q.head = (q.head - 1 + len(q.items)) % len(q.items)
	q.items[q.head] = v
	q.size++
	q.mu.Unlock()

	if dropped {
		q.metrics.addDropped(1)
	}
	q.metrics.addPushed()
	q.signal()
	return dropped
}

// Pop removes and returns the head item, blocking while the deque is empty.
func (q *Deque[T]) Pop() T {
	for {
		if v, ok := q.TryPop(); ok {
			return v
		}
		<-q.notify
	}
}

// TryPop removes the head item without blocking.
// Returns (zero, false) if the deque is empty.
func (q *Deque[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if q.size == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	v := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	remaining := q.size
	q.mu.Unlock()

	q.metrics.addPopped()
	if remaining > 0 {
		// another consumer may be parked behind the token we just took
		q.signal()
	}
	return v, true
}

// Clear discards all items and returns how many were removed.
func (q *Deque[T]) Clear() int {
	q.mu.Lock()
	n := q.size
	var zero T
	for i := 0; i < q.size; i++ {
		q.items[(q.head+i)%len(q.items)] = zero
	}
	q.head = 0
	q.size = 0
	q.mu.Unlock()

	if n > 0 {
		q.metrics.addDropped(n)
	}
	return n
}

// Len returns the number of queued items.
func (q *Deque[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the capacity.
func (q *Deque[T]) Cap() int {
	return len(q.items)
}

// GetMetrics returns a snapshot of the counters.
func (q *Deque[T]) GetMetrics() Metrics {
	return Metrics{
		Pushed:   atomic.LoadInt64(&q.metrics.Pushed),
		Popped:   atomic.LoadInt64(&q.metrics.Popped),
		Rejected: atomic.LoadInt64(&q.metrics.Rejected),
		Dropped:  atomic.LoadInt64(&q.metrics.Dropped),
	}
}

func (q *Deque[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Metrics counts deque traffic. All fields are updated atomically.
type Metrics struct {
	Pushed   int64
	Popped   int64
	Rejected int64 // TryPush on a full deque
	Dropped  int64 // discarded by Clear or by PushFront on a full deque
}

func (m *Metrics) addPushed()       { atomic.AddInt64(&m.Pushed, 1) }
func (m *Metrics) addPopped()       { atomic.AddInt64(&m.Popped, 1) }
func (m *Metrics) addRejected()     { atomic.AddInt64(&m.Rejected, 1) }
func (m *Metrics) addDropped(n int) { atomic.AddInt64(&m.Dropped, int64(n)) }
