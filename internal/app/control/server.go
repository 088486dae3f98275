package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ghalamif/opcbridge/internal/app/supervisor"
	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

const (
	defaultTail = 100
	maxTail     = 10_000
)

// Workers is the part of the supervisor the control surface drives.
type Workers interface {
	Status() map[domain.WorkerKind]domain.WorkerStatus
	Start(kind domain.WorkerKind) error
	Stop(kind domain.WorkerKind) error
	Restart(ctx context.Context, kind domain.WorkerKind) error
	Toggle(kind domain.WorkerKind) (bool, error)
	ToggleBoth(on bool) error
}

// Catalog yields the nodes an operator may select.
type Catalog interface {
	Available() ([]domain.SelectionEntry, error)
}

// LogSource is one tailable log.
type LogSource interface {
	Name() string
	Tail(n int) ([]string, error)
	Clear() error
}

type Server struct {
	workers   Workers
	catalog   Catalog
	selection ports.SelectionStore
	settings  ports.SettingsStore
	logs      []LogSource
	obs       ports.Observability

	// AddNode makes a node selectable without a catalog traversal. Probe
	// checks bus connectivity. Refresh rebuilds the catalog and returns the
	// number of exported nodes. Any of them may be nil.
	AddNode func(e domain.SelectionEntry) error
	Probe   func(ctx context.Context) error
	Refresh func(ctx context.Context) (int, error)
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

func NewServer(workers Workers, catalog Catalog, selection ports.SelectionStore, settings ports.SettingsStore, logs []LogSource, obs ports.Observability) *Server {
	return &Server{
		workers:   workers,
		catalog:   catalog,
		selection: selection,
		settings:  settings,
		logs:      logs,
		obs:       obs,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/workers/toggle", s.handleToggleBoth)
	mux.HandleFunc("POST /api/workers/{kind}/{action}", s.handleWorker)
	mux.HandleFunc("GET /api/nodes", s.handleNodes)
	mux.HandleFunc("POST /api/nodes", s.handleAddNode)
	mux.HandleFunc("GET /api/selection", s.handleGetSelection)
	mux.HandleFunc("PUT /api/selection", s.handlePutSelection)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("POST /api/logs/clear", s.handleClearLogs)
	mux.HandleFunc("GET /api/bus/check", s.handleBusCheck)
	mux.HandleFunc("POST /api/catalog/refresh", s.handleCatalogRefresh)
	return mux
}

type statusResponse struct {
	Status  map[domain.WorkerKind]string              `json:"status"`
	Workers map[domain.WorkerKind]domain.WorkerStatus `json:"workers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	workers := s.workers.Status()
	states := make(map[domain.WorkerKind]string, len(workers))
	for k, st := range workers {
		states[k] = st.State()
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: states, Workers: workers})
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseWorkerKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	action := r.PathValue("action")
	switch action {
	case "start":
		err = s.workers.Start(kind)
	case "stop":
		err = s.workers.Stop(kind)
	case "restart":
		err = s.workers.Restart(r.Context(), kind)
	case "toggle":
		_, err = s.workers.Toggle(kind)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", action))
		return
	}
	if err != nil {
		s.obs.LogError("worker_action_failed", err,
			ports.Field{Key: "worker", Value: string(kind)},
			ports.Field{Key: "action", Value: action})
		writeError(w, statusFor(err), err)
		return
	}

	st := s.workers.Status()[kind]
	writeJSON(w, http.StatusOK, map[string]any{"worker": kind, "state": st.State()})
}

func (s *Server) handleToggleBoth(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(r.URL.Query().Get("on"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("query parameter on must be true or false"))
		return
	}
	if err := s.workers.ToggleBoth(on); err != nil {
		s.obs.LogError("toggle_all_failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"status": s.states(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": s.states()})
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes, err := s.catalog.Available()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

type addNodeRequest struct {
	NodeID      domain.NodeID `json:"node_id"`
	BrowseName  string        `json:"browse_name"`
	Description string        `json:"description"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	if s.AddNode == nil {
		writeError(w, http.StatusNotImplemented, errors.New("adding nodes is not configured"))
		return
	}
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	e := domain.SelectionEntry{NodeID: req.NodeID, BrowseName: req.BrowseName, Description: req.Description}
	if err := s.AddNode(e); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidNodeID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"node": e})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.selection.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []domain.SelectionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": entries})
}

type selectionRequest struct {
	NodeIDs []domain.NodeID `json:"node_ids"`
}

func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	selected, ignored, err := s.UpdateSelection(req.NodeIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": selected, "ignored": ignored})
}

// UpdateSelection replaces the selection with the available nodes whose ids
// are listed. Ids not in the catalog are returned as ignored.
func (s *Server) UpdateSelection(ids []domain.NodeID) ([]domain.SelectionEntry, []domain.NodeID, error) {
	available, err := s.catalog.Available()
	if err != nil {
		return nil, nil, fmt.Errorf("load available nodes: %w", err)
	}
	selected := domain.PickSelection(available, ids)

	known := make(map[domain.NodeID]struct{}, len(selected))
	for _, e := range selected {
		known[e.NodeID] = struct{}{}
	}
	ignored := []domain.NodeID{}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			ignored = append(ignored, id)
		}
	}

	if err := s.selection.Replace(selected); err != nil {
		return nil, nil, fmt.Errorf("replace selection: %w", err)
	}
	s.obs.LogInfo("selection_updated",
		ports.Field{Key: "selected", Value: len(selected)},
		ports.Field{Key: "ignored", Value: len(ignored)})
	return selected, ignored, nil
}

type settingsBody struct {
	PollInterval string `json:"poll_interval"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	st, err := s.settings.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{PollInterval: st.PollInterval.String()})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	d, err := time.ParseDuration(req.PollInterval)
	if err != nil || d <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("poll_interval must be a positive duration, got %q", req.PollInterval))
		return
	}
	if err := s.settings.Save(domain.Settings{PollInterval: d}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.obs.LogInfo("settings_updated", ports.Field{Key: "poll_interval", Value: d.String()})
	writeJSON(w, http.StatusOK, settingsBody{PollInterval: d.String()})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultTail
	if raw := r.URL.Query().Get("tail"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("tail must be a positive integer"))
			return
		}
		n = min(v, maxTail)
	}

	out := make(map[string][]string, len(s.logs))
	for _, src := range s.logs {
		lines, err := src.Tail(n)
		if err != nil {
			lines = []string{fmt.Sprintf("[%s] Error reading log file: %v", time.Now().Format("2006-01-02 15:04:05"), err)}
		}
		if lines == nil {
			lines = []string{}
		}
		out[src.Name()] = lines
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, _ *http.Request) {
	var errs []error
	for _, src := range s.logs {
		if err := src.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "all logs cleared"})
}

func (s *Server) handleBusCheck(w http.ResponseWriter, r *http.Request) {
	if s.Probe == nil {
		writeError(w, http.StatusNotImplemented, errors.New("bus probe not configured"))
		return
	}
	if err := s.Probe(r.Context()); err != nil {
		s.obs.LogError("bus_check_failed", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if s.Refresh == nil {
		writeError(w, http.StatusNotImplemented, errors.New("catalog refresh not configured"))
		return
	}
	n, err := s.Refresh(r.Context())
	if err != nil {
		s.obs.LogError("catalog_refresh_failed", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": n})
}

func (s *Server) states() map[domain.WorkerKind]string {
	workers := s.workers.Status()
	out := make(map[domain.WorkerKind]string, len(workers))
	for k, st := range workers {
		out[k] = st.State()
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrUnknownWorker):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrAlreadyStopped):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
