package opcbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ghalamif/opcbridge/internal/app/control"
	"github.com/ghalamif/opcbridge/internal/app/supervisor"
	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

const shutdownTimeout = 15 * time.Second

// Serve runs the control process: the worker supervisor and the HTTP
// control surface with metrics. It blocks until ctx is cancelled, then
// stops both workers.
func (r *Runtime) Serve(ctx context.Context) error {
	appLog, err := supervisor.OpenLogSink(filepath.Join(r.cfg.Supervisor.LogsDir, "application.log"), "application")
	if err != nil {
		return err
	}
	r.log.AddHook(&sinkHook{sink: appLog, formatter: &logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}})
	defer r.log.ReplaceHooks(make(logrus.LevelHooks))

	sup, err := r.newSupervisor()
	if err != nil {
		_ = appLog.Close()
		return err
	}

	logs := []control.LogSource{appLog}
	for _, kind := range sup.Kinds() {
		sink, _ := sup.Sink(kind)
		logs = append(logs, sink)
	}

	// Create the selection and settings files up front so operators can
	// edit them before the first worker starts.
	if _, err := r.selection.Load(); err != nil {
		r.obs.LogError("selection_init_failed", err)
	}
	if _, err := r.settings.Load(); err != nil {
		r.obs.LogError("settings_init_failed", err)
	}

	if r.cfg.Catalog.ExportOnStart {
		if n, err := r.ExportCatalog(ctx); err != nil {
			r.obs.LogError("catalog_export_failed", err)
		} else {
			r.obs.LogInfo("catalog_export_on_start", ports.Field{Key: "nodes", Value: n})
		}
	}

	srv := control.NewServer(sup, r, r.selection, r.settings, logs, r.obs)
	srv.AddNode = r.AddNode
	srv.Probe = r.CheckBus
	srv.Refresh = r.ExportCatalog
	srv.Metrics = promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})

	httpSrv := &http.Server{
		Addr:              r.cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.ListenAndServe()
	}()
	r.obs.LogInfo("control_listening",
		ports.Field{Key: "addr", Value: r.cfg.HTTP.Addr},
		ports.Field{Key: "mode", Value: r.cfg.Supervisor.Mode})

	var errs []error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("control server: %w", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	r.log.ReplaceHooks(make(logrus.LevelHooks))
	if err := appLog.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runtime) newSupervisor() (*supervisor.Supervisor, error) {
	sup := supervisor.New(supervisor.Options{
		LogsDir:     r.cfg.Supervisor.LogsDir,
		SettleDelay: r.cfg.Supervisor.SettleDelay,
	}, r.obs)

	for _, kind := range domain.WorkerKinds {
		runner, err := r.runner(kind)
		if err != nil {
			return nil, err
		}
		if err := sup.Register(kind, runner); err != nil {
			return nil, err
		}
	}
	return sup, nil
}

// runner picks how a worker is launched: as a goroutine of this process or
// by re-executing the binary with the worker subcommand.
func (r *Runtime) runner(kind domain.WorkerKind) (supervisor.Runner, error) {
	if r.cfg.Supervisor.Mode == ModeProcess {
		if r.cfg.Path == "" {
			return nil, fmt.Errorf("process mode needs a config loaded from a file")
		}
		return &supervisor.Command{
			Path:        r.cfg.Supervisor.Executable,
			Args:        []string{string(kind), "--config", r.cfg.Path, "--supervised"},
			StopTimeout: r.cfg.Supervisor.StopTimeout,
		}, nil
	}

	switch kind {
	case domain.WorkerPoller:
		return supervisor.Task(r.RunPoller), nil
	case domain.WorkerWriter:
		return supervisor.Task(r.RunWriter), nil
	}
	return nil, fmt.Errorf("%w: %q", supervisor.ErrUnknownWorker, kind)
}

// sinkHook copies control process log entries into the application log.
type sinkHook struct {
	sink      *supervisor.LogSink
	formatter logrus.Formatter
}

func (h *sinkHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *sinkHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	return h.sink.WriteLine("", strings.TrimRight(string(b), "\n"))
}
