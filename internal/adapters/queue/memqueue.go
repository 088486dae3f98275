package queue

import (
	"sync"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// MemQueue is a bounded FIFO of points backed by a ring buffer.
type MemQueue struct {
	mu   sync.Mutex
	buf  []*domain.Point
	head int
	n    int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &MemQueue{buf: make([]*domain.Point, capacity)}
}

// Enqueue appends p unless the queue is full.
func (q *MemQueue) Enqueue(p *domain.Point) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		return false
	}
	q.push(p)
	return true
}

// EnqueueEvict always accepts p, discarding the oldest buffered point when
// the queue is full. It reports whether a point was discarded.
func (q *MemQueue) EnqueueEvict(p *domain.Point) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return true
	}
	evicted := false
	if q.n == len(q.buf) {
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		evicted = true
	}
	q.push(p)
	return evicted
}

// DequeueBatch removes up to max points in arrival order. max <= 0 drains
// the queue.
func (q *MemQueue) DequeueBatch(max int) []*domain.Point {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil
	}
	if max <= 0 || max > q.n {
		max = q.n
	}
	out := make([]*domain.Point, max)
	for i := range out {
		out[i] = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
	}
	q.n -= max
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// push requires q.mu and a free slot.
func (q *MemQueue) push(p *domain.Point) {
	q.buf[(q.head+q.n)%len(q.buf)] = p
	q.n++
}

var _ ports.PointQueue = (*MemQueue)(nil)
