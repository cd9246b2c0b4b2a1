package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/circle"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger and status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		env, err := initCircle(ctx, envOptions{Mode: "serve", Registerer: reg})
		if err != nil {
			return err
		}
		defer env.Close()

		cs := newCycleServer(ctx, env.Orchestrator, env.Store, reg)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(cs, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		return runServer(ctx, srv, cs, srv.ListenAndServe)
	},
}

// runServer serves until ctx is done or listen fails. On the way out it
// stops accepting requests and waits for background cycles, so the store
// and clients they use outlive them.
func runServer(ctx context.Context, srv *http.Server, cs *cycleServer, listen func() error) error {
	errc := make(chan error, 1)
	go func() { errc <- listen() }()

	var listenErr error
	select {
	case listenErr = <-errc:
	case <-ctx.Done():
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
		cancel()
		listenErr = <-errc
	}

	zap.L().Info("waiting for background cycles")
	cs.wait()

	if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
		return eris.Wrap(listenErr, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// cycleRunner is the part of the orchestrator the server drives.
type cycleRunner interface {
	ExecuteCompleteCycle(ctx context.Context, businessUnitID string) *model.CycleReport
	Status(ctx context.Context, businessUnitID string, n int) (*circle.Status, error)
}

// historyReader is the part of the store the server reads.
type historyReader interface {
	store.CycleStore
	Ping(ctx context.Context) error
}

// cycleServer answers cycle triggers and history queries. Background
// cycles run under base, not the request context.
type cycleServer struct {
	base     context.Context
	runner   cycleRunner
	history  historyReader
	gatherer prometheus.Gatherer

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

func newCycleServer(base context.Context, runner cycleRunner, history historyReader, gatherer prometheus.Gatherer) *cycleServer {
	return &cycleServer{
		base:     base,
		runner:   runner,
		history:  history,
		gatherer: gatherer,
		inFlight: make(map[string]bool),
	}
}

func newRouter(s *cycleServer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Route("/cycles", func(r chi.Router) {
		r.Post("/", s.trigger)
		r.Get("/", s.list)
		r.Get("/{id}", s.show)
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type triggerRequest struct {
	BusinessUnitID string `json:"business_unit_id"`
}

func (s *cycleServer) trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	bu := req.BusinessUnitID
	if bu == "" {
		bu = model.DefaultBusinessUnit
	}

	if !s.claim(bu) {
		writeError(w, http.StatusConflict, circle.ErrCycleInProgress.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		defer s.release(bu)
		rep := s.runner.ExecuteCompleteCycle(r.Context(), bu)
		switch {
		case rep.Success:
			writeJSON(w, http.StatusOK, rep)
		case rep.CycleID == "" && rep.Error == circle.ErrCycleInProgress.Error():
			writeError(w, http.StatusConflict, rep.Error)
		default:
			writeJSON(w, http.StatusInternalServerError, rep)
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(bu)
		rep := s.runner.ExecuteCompleteCycle(s.base, bu)
		if !rep.Success {
			zap.L().Error("triggered cycle failed",
				zap.String("business_unit", bu),
				zap.String("cycle_id", rep.CycleID),
				zap.String("error", rep.Error),
			)
			return
		}
		zap.L().Info("triggered cycle complete",
			zap.String("business_unit", bu),
			zap.String("cycle_id", rep.CycleID),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":           "accepted",
		"business_unit_id": bu,
	})
}

func (s *cycleServer) claim(bu string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[bu] {
		return false
	}
	s.inFlight[bu] = true
	return true
}

func (s *cycleServer) release(bu string) {
	s.mu.Lock()
	delete(s.inFlight, bu)
	s.mu.Unlock()
}

// wait blocks until background cycles finish.
func (s *cycleServer) wait() { s.wg.Wait() }

func (s *cycleServer) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CycleFilter{BusinessUnitID: q.Get("bu")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = t
	}

	cycles, err := s.history.ListCycles(r.Context(), filter)
	if err != nil {
		zap.L().Error("list cycles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list cycles failed")
		return
	}
	if cycles == nil {
		cycles = []model.CycleMetrics{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *cycleServer) show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := s.history.GetCycle(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "cycle not found")
		return
	}
	if err != nil {
		zap.L().Error("get cycle", zap.String("cycle_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *cycleServer) status(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("last"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "last must be an integer")
			return
		}
	}
	st, err := s.runner.Status(r.Context(), r.URL.Query().Get("bu"), n)
	if err != nil {
		zap.L().Error("cycle status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *cycleServer) health(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Ping(r.Context()); err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
