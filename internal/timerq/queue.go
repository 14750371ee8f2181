// Package timerq implements the background timer queue of spec §4.10: a
// single goroutine owns a min-heap of (deadline, id, callback) tuples,
// woken by a buffered channel standing in for the condition variable the
// spec describes (Go's sync.Cond has no deadline-aware Wait, so a
// time.Timer plus a one-slot wake channel is this module's idiomatic
// substitute for the same wait/deadline/wake semantics).
package timerq

import (
	"container/heap"
	"sync"
	"time"
)

// Callback receives aborted=true when fired by CancelAll/Close instead of
// by reaching its deadline naturally.
type Callback func(aborted bool)

type item struct {
	deadline time.Time
	id       uint64
	callback Callback
	aborted  bool
	index    int
}

type minHeap []*item

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *minHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// TimerQueue is one background timer thread plus its min-heap, typically
// one per Tree.
type TimerQueue struct {
	mu     sync.Mutex
	heap   minHeap
	items  map[uint64]*item
	nextID uint64
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts the background goroutine and returns a ready queue.
func New() *TimerQueue {
	q := &TimerQueue{
		items: map[uint64]*item{},
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *TimerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Add enqueues callback to fire after d and wakes the timer thread. It
// returns 0, doing nothing, if the queue has already been closed.
func (q *TimerQueue) Add(d time.Duration, callback Callback) uint64 {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.nextID++
	id := q.nextID
	it := &item{deadline: time.Now().Add(d), id: id, callback: callback}
	heap.Push(&q.heap, it)
	q.items[id] = it
	q.mu.Unlock()
	q.signal()
	return id
}

// Cancel nulls out id's callback. The heap entry itself is left in place
// and silently dropped when the thread pops it, per spec §4.10 — Cancel
// does not force early firing or re-sort the heap.
func (q *TimerQueue) Cancel(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.items[id]; ok {
		it.callback = nil
		delete(q.items, id)
	}
}

// CancelAll marks every still-pending item aborted and moves it to the
// front of the heap, so the thread fires each one promptly with
// aborted=true instead of waiting for its original deadline.
func (q *TimerQueue) CancelAll() {
	q.mu.Lock()
	for _, it := range q.items {
		it.aborted = true
		if it.index >= 0 {
			it.deadline = time.Time{}
			heap.Fix(&q.heap, it.index)
		}
	}
	q.items = map[uint64]*item{}
	q.mu.Unlock()
	q.signal()
}

// Close cancels every pending callback, firing them all immediately with
// aborted=true, then waits for the background goroutine to exit. A second
// call finds done already closed and returns without blocking.
func (q *TimerQueue) Close() {
	q.CancelAll()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}

func (q *TimerQueue) loop() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed && len(q.heap) == 0 {
			q.mu.Unlock()
			close(q.done)
			return
		}

		now := time.Now()
		var due []*item
		for len(q.heap) > 0 {
			next := q.heap[0]
			if q.closed || !next.deadline.After(now) {
				due = append(due, heap.Pop(&q.heap).(*item))
				continue
			}
			break
		}
		var wait time.Duration = -1
		if len(q.heap) > 0 {
			wait = q.heap[0].deadline.Sub(now)
			if wait < 0 {
				wait = 0
			}
		}
		q.mu.Unlock()

		for _, it := range due {
			if it.callback != nil {
				it.callback(it.aborted)
			}
		}
		if len(due) > 0 {
			// Closed or newly-ready items may remain; loop back around
			// before committing to a wait.
			continue
		}

		if wait < 0 {
			<-q.wake
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-q.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}
