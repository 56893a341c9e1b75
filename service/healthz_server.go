package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// RunStatus is the last completed run as served on /status.
type RunStatus struct {
	RunID    string `json:"runId"`
	Result   string `json:"result"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Drained  bool   `json:"drained"`
	Duration string `json:"duration"`
}

// HealthzServer serves liveness, the latest report directory and run status.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server

	mu        sync.RWMutex
	reportDir string
	status    *RunStatus
}

// SetLatestRun points /report/ at dir and /status at status.
func (h *HealthzServer) SetLatestRun(dir string, status RunStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reportDir = dir
	h.status = &status
}

// Handler builds the router. Exposed for tests.
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.PathPrefix("/report/").HandlerFunc(h.handleReport).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	status := h.status
	h.mu.RUnlock()
	if status == nil {
		http.Error(w, "no run completed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error("failed to encode run status", "err", err)
	}
}

func (h *HealthzServer) handleReport(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	dir := h.reportDir
	h.mu.RUnlock()
	if dir == "" {
		http.Error(w, "no report available yet", http.StatusNotFound)
		return
	}
	http.StripPrefix("/report/", http.FileServer(http.Dir(dir))).ServeHTTP(w, r)
}
