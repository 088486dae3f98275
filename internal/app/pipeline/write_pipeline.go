package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

const flushTimeout = 5 * time.Second

// evictingQueue is implemented by queues that can make room by discarding
// their oldest element.
type evictingQueue interface {
	EnqueueEvict(p *domain.Point) bool
}

// Writer turns bus messages into points and writes them to the sink in
// batches. Delivery is at most once: a failed write is logged and dropped.
type Writer struct {
	sink        ports.Sink
	queue       ports.PointQueue
	pol         ports.Policy
	obs         ports.Observability
	measurement string
	now         func() time.Time

	stopped atomic.Bool
}

func NewWriter(sink ports.Sink, q ports.PointQueue, pol ports.Policy, measurement string, obs ports.Observability) *Writer {
	return &Writer{
		sink:        sink,
		queue:       q,
		pol:         pol,
		obs:         obs,
		measurement: measurement,
		now:         time.Now,
	}
}

// HandleMessage is the bus callback. It never waits on the sink.
func (w *Writer) HandleMessage(topic string, payload []byte) {
	w.obs.IncCounter("bridge_messages_received_total", 1)

	msg, err := domain.DecodeTelemetryMessage(payload)
	if err != nil {
		w.obs.RecordDrop("decode", err, ports.Field{Key: "topic", Value: topic})
		return
	}
	v, err := msg.Float()
	if err != nil {
		w.obs.RecordDrop("decode", err, ports.Field{Key: "topic", Value: topic}, ports.Field{Key: "node_id", Value: msg.NodeID})
		return
	}

	p := &domain.Point{Measurement: w.measurement, Sensor: msg.NodeID, Value: v}
	if !w.enqueue(p) {
		return
	}
	w.obs.SetGauge("bridge_writer_queue_length", float64(w.queue.Len()))
}

func (w *Writer) enqueue(p *domain.Point) bool {
	sleep := w.pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := w.queue.Enqueue(p); ok {
			return true
		}

		switch w.pol.OnQueueFull {
		case "block":
			if w.stopped.Load() {
				w.obs.RecordDrop("queue_full", fmt.Errorf("writer stopped"), ports.Field{Key: "sensor", Value: p.Sensor})
				return false
			}
			time.Sleep(sleep)
		case "drop_oldest":
			if eq, ok := w.queue.(evictingQueue); ok {
				if eq.EnqueueEvict(p) {
					w.obs.RecordDrop("queue_full", fmt.Errorf("evicted oldest point at capacity %d", w.pol.MaxQueueLen))
				}
				return true
			}
			w.obs.RecordDrop("queue_full", fmt.Errorf("queue length exceeded capacity %d", w.pol.MaxQueueLen), ports.Field{Key: "sensor", Value: p.Sensor})
			return false
		case "drop", "":
			w.obs.RecordDrop("queue_full", fmt.Errorf("queue length exceeded capacity %d", w.pol.MaxQueueLen), ports.Field{Key: "sensor", Value: p.Sensor})
			return false
		default:
			w.obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", w.pol.OnQueueFull))
			return false
		}
	}
}

// Run drains the queue into the sink until ctx is cancelled, then flushes
// what is left once.
func (w *Writer) Run(ctx context.Context) error {
	w.stopped.Store(false)
	defer w.stopped.Store(true)

	idle := w.pol.IdleSleep
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()

	w.obs.LogInfo("writer_started", ports.Field{Key: "sink", Value: w.sink.Name()})
	for {
		if ctx.Err() != nil {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			for w.Flush(flushCtx) > 0 {
			}
			cancel()
			return nil
		}

		if w.Flush(ctx) > 0 {
			continue
		}

		timer.Reset(idle)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Flush writes at most one batch and returns how many points it took off
// the queue.
func (w *Writer) Flush(ctx context.Context) int {
	batch := w.queue.DequeueBatch(w.pol.MaxBatchSize)
	w.obs.SetGauge("bridge_writer_queue_length", float64(w.queue.Len()))
	if len(batch) == 0 {
		return 0
	}

	ts := w.now()
	for _, p := range batch {
		p.Time = ts
	}

	start := time.Now()
	if err := w.sink.WriteBatch(ctx, batch); err != nil {
		w.obs.RecordDrop("write", err,
			ports.Field{Key: "sink", Value: w.sink.Name()},
			ports.Field{Key: "points", Value: len(batch)},
		)
		return len(batch)
	}
	w.obs.ObserveLatency("bridge_write_latency_seconds", time.Since(start).Seconds())
	w.obs.IncCounter("bridge_points_written_total", float64(len(batch)))
	return len(batch)
}
