package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

var (
	ErrAlreadyRunning = errors.New("worker already running")
	ErrAlreadyStopped = errors.New("worker already stopped")
	ErrUnknownWorker  = errors.New("unknown worker")
)

type Options struct {
	// LogsDir holds one <kind>.log file per worker.
	LogsDir string
	// SettleDelay is the pause between stop and start on Restart.
	SettleDelay time.Duration
}

// worker owns the handle of one worker kind. Its mutex serialises start and
// stop for that kind only.
type worker struct {
	kind   domain.WorkerKind
	runner Runner
	sink   *LogSink

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	status domain.WorkerStatus
}

// Supervisor starts and stops the bridge workers and keeps at most one
// live instance of each.
type Supervisor struct {
	opts Options
	obs  ports.Observability
	now  func() time.Time

	regMu   sync.RWMutex
	workers map[domain.WorkerKind]*worker

	reapers sync.WaitGroup
}

func New(opts Options, obs ports.Observability) *Supervisor {
	if opts.LogsDir == "" {
		opts.LogsDir = "./data/logs"
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = time.Second
	}
	return &Supervisor{
		opts:    opts,
		obs:     obs,
		now:     time.Now,
		workers: make(map[domain.WorkerKind]*worker),
	}
}

// Register attaches a runner to kind and opens its log file.
func (s *Supervisor) Register(kind domain.WorkerKind, r Runner) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if _, ok := s.workers[kind]; ok {
		return fmt.Errorf("worker %s already registered", kind)
	}
	sink, err := OpenLogSink(filepath.Join(s.opts.LogsDir, string(kind)+".log"), string(kind))
	if err != nil {
		return err
	}
	s.workers[kind] = &worker{
		kind:   kind,
		runner: r,
		sink:   sink,
		status: domain.WorkerStatus{Kind: kind},
	}
	return nil
}

func (s *Supervisor) worker(kind domain.WorkerKind) (*worker, error) {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	w, ok := s.workers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorker, kind)
	}
	return w, nil
}

// Kinds lists the registered workers in name order.
func (s *Supervisor) Kinds() []domain.WorkerKind {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	kinds := make([]domain.WorkerKind, 0, len(s.workers))
	for k := range s.workers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (s *Supervisor) IsRunning(kind domain.WorkerKind) bool {
	w, err := s.worker(kind)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (s *Supervisor) Start(kind domain.WorkerKind) error {
	w, err := s.worker(kind)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return s.startLocked(w)
}

func (s *Supervisor) Stop(kind domain.WorkerKind) error {
	w, err := s.worker(kind)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return s.stopLocked(w)
}

// Restart stops kind if it runs, waits the settle delay and starts it.
func (s *Supervisor) Restart(ctx context.Context, kind domain.WorkerKind) error {
	if err := s.Stop(kind); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		return err
	}

	t := time.NewTimer(s.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	return s.Start(kind)
}

// Toggle flips kind and reports whether it is running afterwards.
func (s *Supervisor) Toggle(kind domain.WorkerKind) (bool, error) {
	w, err := s.worker(kind)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return false, s.stopLocked(w)
	}
	if err := s.startLocked(w); err != nil {
		return false, err
	}
	return true, nil
}

// ToggleBoth brings every worker to the requested state. Workers already
// there are left alone; a failure on one does not affect the others.
func (s *Supervisor) ToggleBoth(on bool) error {
	kinds := s.Kinds()
	errs := make([]error, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind domain.WorkerKind) {
			defer wg.Done()
			var err error
			if on {
				err = s.Start(kind)
				if errors.Is(err, ErrAlreadyRunning) {
					err = nil
				}
			} else {
				err = s.Stop(kind)
				if errors.Is(err, ErrAlreadyStopped) {
					err = nil
				}
			}
			errs[i] = err
		}(i, kind)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Status reports every registered worker.
func (s *Supervisor) Status() map[domain.WorkerKind]domain.WorkerStatus {
	out := make(map[domain.WorkerKind]domain.WorkerStatus)
	for _, kind := range s.Kinds() {
		w, _ := s.worker(kind)
		w.mu.Lock()
		out[kind] = w.status
		w.mu.Unlock()
	}
	return out
}

// Sink returns the log of kind.
func (s *Supervisor) Sink(kind domain.WorkerKind) (*LogSink, error) {
	w, err := s.worker(kind)
	if err != nil {
		return nil, err
	}
	return w.sink, nil
}

// Shutdown stops every running worker and waits for them to exit or for ctx
// to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.ToggleBoth(false); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		s.reapers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for workers: %w", ctx.Err()))
	}

	for _, kind := range s.Kinds() {
		w, _ := s.worker(kind)
		if err := w.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s log: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) startLocked(w *worker) error {
	if w.cancel != nil {
		return fmt.Errorf("%s: %w", w.kind, ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, err := w.runner.Launch(ctx, w.sink.Writer(""), w.sink.Writer("Error"))
	if err != nil {
		cancel()
		s.obs.LogError("worker_spawn_failed", err, ports.Field{Key: "worker", Value: string(w.kind)})
		_ = w.sink.WriteLine("", fmt.Sprintf("spawn failed: %v", err))
		return fmt.Errorf("start %s: %w", w.kind, err)
	}

	w.gen++
	w.cancel = cancel
	w.status = domain.WorkerStatus{Kind: w.kind, Running: true, StartedAt: s.now()}

	s.reapers.Add(1)
	go s.reap(w, w.gen, done)

	s.obs.IncCounter("bridge_worker_starts_total", 1)
	s.obs.SetGauge(runningGauge(w.kind), 1)
	s.obs.LogInfo("worker_started", ports.Field{Key: "worker", Value: string(w.kind)})
	return nil
}

func (s *Supervisor) stopLocked(w *worker) error {
	if w.cancel == nil {
		return fmt.Errorf("%s: %w", w.kind, ErrAlreadyStopped)
	}
	w.cancel()
	w.cancel = nil
	w.status.Running = false
	w.status.LastExit = "stopped"
	w.status.ExitedAt = s.now()

	s.obs.IncCounter("bridge_worker_stops_total", 1)
	s.obs.SetGauge(runningGauge(w.kind), 0)
	s.obs.LogInfo("worker_stopped", ports.Field{Key: "worker", Value: string(w.kind)})
	return nil
}

// reap records the exit of one instance. A handle replaced by a later
// start is left untouched.
func (s *Supervisor) reap(w *worker, gen uint64, done <-chan error) {
	defer s.reapers.Done()
	err := <-done

	s.obs.IncCounter("bridge_worker_exits_total", 1)
	fields := []ports.Field{{Key: "worker", Value: string(w.kind)}}
	if err != nil {
		s.obs.LogError("worker_exited", err, fields...)
		_ = w.sink.WriteLine("", fmt.Sprintf("exited: %v", err))
	} else {
		s.obs.LogInfo("worker_exited", fields...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen || w.cancel == nil {
		return
	}
	w.cancel()
	w.cancel = nil
	w.status.Running = false
	w.status.ExitedAt = s.now()
	w.status.LastExit = "exited"
	if err != nil {
		w.status.LastExit = err.Error()
	}
	s.obs.SetGauge(runningGauge(w.kind), 0)
}

func runningGauge(kind domain.WorkerKind) string {
	return "bridge_" + string(kind) + "_running"
}
