package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/metrics"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned once the queue is closed and drained.
	ErrClosed = errors.New("queue closed")
)

// Entry is a submission waiting for a worker slot.
type Entry struct {
	RunID      string
	Submission execution.Submission
}

type item struct {
	entry    Entry
	priority execution.Priority
	seq      uint64
	index    int
}

// Queue orders pending submissions by priority class, first-in-first-out
// within a class. Push never blocks.
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	byRun    map[string]*item
	capacity int
	seq      uint64
	closed   bool

	// wake holds at most one pending signal for blocked consumers.
	wake chan struct{}
	done chan struct{}
}

// New constructs a queue holding at most capacity entries.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		byRun:    make(map[string]*item),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push enqueues entry or fails immediately with ErrQueueFull.
func (q *Queue) Push(entry Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}

	q.seq++
	it := &item{entry: entry, priority: entry.Submission.Priority, seq: q.seq}
	heap.Push(&q.items, it)
	q.byRun[entry.RunID] = it
	metrics.QueueDepth.Set(float64(len(q.items)))

	q.signal()
	return nil
}

// Pop blocks until an entry is available, the queue is closed and empty, or
// ctx ends.
func (q *Queue) Pop(ctx context.Context) (Entry, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := heap.Pop(&q.items).(*item)
			delete(q.byRun, it.entry.RunID)
			metrics.QueueDepth.Set(float64(len(q.items)))
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return it.entry, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Entry{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-q.wake:
		case <-q.done:
		}
	}
}

// Remove drops a queued entry. It reports false when the run is not queued.
func (q *Queue) Remove(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byRun[runID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, it.index)
	delete(q.byRun, runID)
	metrics.QueueDepth.Set(float64(len(q.items)))
	return true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes. Entries already queued are still handed out.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
