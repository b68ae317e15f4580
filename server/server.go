//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package server exposes workflow runs over HTTP.
//
//	GET  /healthz                 liveness
//	GET  /metrics                 Prometheus metrics
//	GET  /v1/workflows            workflow names
//	GET  /v1/workflows/{name}     workflow definition
//	POST /v1/runs                 start a run (202), or wait / stream it
//	GET  /v1/runs                 recent run records
//	GET  /v1/runs/{id}            one run record
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/runner"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store/inmemory"
)

// RunRequest is the body of POST /v1/runs. Workflow may be omitted when the
// server serves a single workflow.
type RunRequest struct {
	Workflow string          `json:"workflow,omitempty"`
	RunID    string          `json:"run_id,omitempty"`
	Query    string          `json:"query,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
	State    graph.State     `json:"state,omitempty"`
	// Mode is "async" (default), "wait" or "stream".
	Mode string `json:"mode,omitempty"`
}

// Run modes.
const (
	ModeAsync  = "async"
	ModeWait   = "wait"
	ModeStream = "stream"
)

// Server serves a fixed set of workflows.
type Server struct {
	router   *mux.Router
	handler  http.Handler
	runners  map[string]*runner.Runner
	store    store.Store
	registry *prometheus.Registry
	metrics  *metrics
	origins  []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithStore reads and writes run records in st. The runners should save to
// the same store.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithCORSOrigins sets the allowed origins. The default allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithPrometheusRegistry registers the server metrics in reg instead of a
// private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// New creates a server for runners, keyed by Runner.Name.
func New(runners []*runner.Runner, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  mux.NewRouter(),
		runners: make(map[string]*runner.Runner, len(runners)),
		origins: []string{"*"},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, r := range runners {
		s.runners[r.Name()] = r
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = inmemory.New()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)
	s.router.Use(s.metrics.middleware)
	s.registerRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type", "Location"},
	})
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the http.Handler of the server.
func (s *Server) Handler() http.Handler { return s.handler }

// Close cancels background runs and waits for them to record their result.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	v1.HandleFunc("/workflows/{name}", s.handleGetWorkflow).Methods(http.MethodGet)
	v1.HandleFunc("/runs", s.handleCreateRun).Methods(http.MethodPost)
	v1.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.runners[mux.Vars(r)["name"]]
	if !ok {
		s.writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rn.Graph().Definition())
}

func (s *Server) lookupRunner(name string) (*runner.Runner, error) {
	if name == "" {
		if len(s.runners) == 1 {
			for _, rn := range s.runners {
				return rn, nil
			}
		}
		return nil, errors.New("workflow is required")
	}
	rn, ok := s.runners[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}
	return rn, nil
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	rn, err := s.lookupRunner(req.Workflow)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.Mode {
	case "", ModeAsync, ModeWait, ModeStream:
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	// The placeholder reserves the run id; the runner overwrites it.
	err = s.store.Create(r.Context(), &runner.Result{
		RunID:     req.RunID,
		Workflow:  rn.Name(),
		Status:    runner.StatusRunning,
		Query:     req.Query,
		StartedAt: time.Now(),
	})
	if errors.Is(err, store.ErrExists) {
		s.writeError(w, http.StatusConflict, "run id already exists")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	in := runner.Input{
		RunID:    req.RunID,
		Query:    req.Query,
		Messages: req.Messages,
		State:    req.State,
	}

	switch req.Mode {
	case "", ModeAsync:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.run(s.ctx, rn, in)
		}()
		w.Header().Set("Location", "/v1/runs/"+in.RunID)
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": in.RunID,
			"status": string(runner.StatusRunning),
		})
	case ModeWait:
		res, _ := s.run(r.Context(), rn, in)
		s.writeJSON(w, http.StatusOK, res)
	case ModeStream:
		s.stream(w, r, rn, in)
	}
}

// run executes one run and records its metrics. Run errors are part of the
// record.
func (s *Server) run(ctx context.Context, rn *runner.Runner, in runner.Input) (*runner.Result, error) {
	s.metrics.activeRuns.Inc()
	defer s.metrics.activeRuns.Dec()
	res, err := rn.Run(ctx, in)
	if res != nil {
		s.metrics.runs.WithLabelValues(rn.Name(), string(res.Status)).Inc()
		s.metrics.runDuration.WithLabelValues(rn.Name()).Observe(res.Duration().Seconds())
	}
	if err != nil {
		log.Warnf("run %s: %v", in.RunID, err)
	}
	return res, err
}

// stream sends the step events as server-sent events followed by a final
// "result" event holding the record.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, rn *runner.Runner, in runner.Input) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	s.metrics.streams.Inc()
	defer s.metrics.streams.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var mu sync.Mutex
	write := func(name string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			log.Errorf("marshal %s event: %v", name, err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
		flusher.Flush()
	}
	in.OnEvent = func(ev *event.Event) {
		if r.Context().Err() == nil {
			write("step", ev)
		}
	}
	res, _ := s.run(r.Context(), rn, in)
	if r.Context().Err() == nil {
		write("result", res)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if workflow := r.URL.Query().Get("workflow"); workflow != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.Workflow == workflow {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	if runs == nil {
		runs = []*runner.Result{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
