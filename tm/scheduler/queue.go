// Package scheduler implements the drift-free periodic and one-shot timers
// the replica's single-threaded event loop drives. Rather than one OS timer
// per pending send (the original's E_queue/E_dequeue fn/int tuples keyed by
// raw handles), timers here live in one min-heap the loop polls once per
// iteration, and a cancelled handle is simply marked dead rather than
// removed from the heap, avoiding an O(n) heap deletion on the hot
// cancel-and-reschedule path every dissemination round takes.
package scheduler

import "container/heap"

// Handle identifies a scheduled timer so it can be cancelled before it
// fires. The zero Handle is never issued by Queue.ScheduleAt.
type Handle uint64

// entry is one heap element: a deadline, the callback to invoke, and a live
// flag so Cancel can mark it dead without a heap search.
type entry struct {
	deadline int64 // unix nanos
	seq      uint64
	handle   Handle
	fn       func()
	live     bool
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a single-threaded timer heap. All methods assume they are
// called from the event loop's dispatch goroutine; Queue does no internal
// locking, matching the replica's run-to-completion model where every
// state mutation happens on one goroutine.
type Queue struct {
	h       entryHeap
	byHandle map[Handle]*entry
	nextSeq uint64
	nextID  Handle
}

// NewQueue returns an empty timer queue.
func NewQueue() *Queue {
	return &Queue{byHandle: make(map[Handle]*entry)}
}

// ScheduleAt schedules fn to run when the loop observes the current time
// has reached deadlineUnixNano, returning a Handle that can cancel it.
// Using an absolute deadline rather than a relative duration is what keeps
// periodic resends drift-free: callers compute the next deadline from the
// last intended deadline, not from "now", so processing jitter on one
// iteration never compounds into the next.
func (q *Queue) ScheduleAt(deadlineUnixNano int64, fn func()) Handle {
	q.nextID++
	id := q.nextID
	q.nextSeq++
	e := &entry{deadline: deadlineUnixNano, seq: q.nextSeq, handle: id, fn: fn, live: true}
	heap.Push(&q.h, e)
	q.byHandle[id] = e
	return id
}

// Cancel marks h's timer dead, if it is still pending. Cancelling an
// already-fired or already-cancelled handle is a no-op.
func (q *Queue) Cancel(h Handle) {
	if e, ok := q.byHandle[h]; ok {
		e.live = false
		delete(q.byHandle, h)
	}
}

// NextDeadline returns the deadline of the earliest still-live timer and
// true, or false if the queue holds no live timer. The loop uses this to
// size its next blocking poll/select wait.
func (q *Queue) NextDeadline() (int64, bool) {
	for len(q.h) > 0 {
		top := q.h[0]
		if !top.live {
			heap.Pop(&q.h)
			continue
		}
		return top.deadline, true
	}
	return 0, false
}

// FireDue pops and invokes every live timer whose deadline is <= nowUnixNano,
// in deadline order. It returns the number of callbacks invoked.
func (q *Queue) FireDue(nowUnixNano int64) int {
	fired := 0
	for len(q.h) > 0 {
		top := q.h[0]
		if !top.live {
			heap.Pop(&q.h)
			continue
		}
		if top.deadline > nowUnixNano {
			break
		}
		heap.Pop(&q.h)
		delete(q.byHandle, top.handle)
		top.fn()
		fired++
	}
	return fired
}
