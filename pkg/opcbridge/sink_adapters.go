package opcbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("opcbridge: channel sink closed")

// PointBatchSink is invoked with each batch the writer takes off its queue.
type PointBatchSink func(ctx context.Context, batch []Point) error

// NewCallbackSink adapts a PointBatchSink into a full Sink so callers can
// plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn PointBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink and the
// read-only channel. Closing the sink closes the channel.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Point) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Point, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch
}

type callbackSink struct {
	name string
	fn   PointBatchSink
}

func (s *callbackSink) WriteBatch(ctx context.Context, points []*Point) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(points) == 0 {
		return nil
	}
	return s.fn(ctx, copyBatch(points))
}

func (s *callbackSink) Name() string { return s.name }
func (s *callbackSink) Close() error { return nil }

type channelSink struct {
	name   string
	ch     chan []Point
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (s *channelSink) WriteBatch(ctx context.Context, points []*Point) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(points) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- copyBatch(points):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

func copyBatch(points []*Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = *p
	}
	return out
}
