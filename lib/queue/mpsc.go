package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue.
// Producers append to a linked list with atomic operations, a single internal
// goroutine moves the items to the Recv channel.
type MPSC[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool
	// producers between their closed check and the end of their append
	pushing atomic.Int64

	// Condition variable for efficient waiting of the consumer
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a new lock-free multi-producer single-consumer queue
func NewMPSC[T any]() *MPSC[T] {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed or value is nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value *T) bool {
	if value == nil {
		return false
	}

	// registered before the closed check, the consumer does not exit while an append is in flight
	q.pushing.Add(1)
	defer q.wake()
	defer q.pushing.Add(-1)

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already moved the tail, which is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer. The lock is taken so the signal cannot fall between
// the consumer's emptiness check and its Wait.
func (q *MPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume continuously sends items from the linked list to the output channel
func (q *MPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			q.out <- value

			// help the gc, the node is the new sentinel
			next.value = nil
		}

		if hasItems {
			continue
		}

		// the order of the loads matters: an append that started before Close
		// is either still counted in pushing or already visible in the list
		if q.drained() {
			return
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !(q.closed.Load() && q.pushing.Load() == 0) {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// drained reports whether the queue is closed and every accepted item was delivered
func (q *MPSC[T]) drained() bool {
	return q.closed.Load() && q.pushing.Load() == 0 && q.head.Load().next.Load() == nil
}

// Recv returns a receive-only channel for consuming from the queue.
// The channel is closed after Close once all queued items were delivered.
func (q *MPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered to the consumer.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// IsClosed returns true if the queue is closed.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the number of items in the queue.
// This is O(n) and should only be used for debugging.
func (q *MPSC[T]) Len() int {
	count := 0
	for current := q.head.Load().next.Load(); current != nil; current = current.next.Load() {
		count++
	}
	return count
}
