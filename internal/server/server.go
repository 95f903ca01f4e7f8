// Package server exposes the analysis pipeline over HTTP: health, stats,
// recent results, the reputation set, and the block ledger. The API is a
// read-mostly presentation boundary; analysis itself runs in the pipeline.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"logwarden/internal/config"
	"logwarden/internal/detect"
	"logwarden/internal/intel"
	"logwarden/internal/observability"
	"logwarden/internal/respond"
)

// Server hosts the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	engine   *detect.Engine
	intel    *intel.Engine
	firewall *respond.Firewall
	store    *Store
	metrics  *observability.Metrics
	registry *prometheus.Registry
	limiter  *RateLimiter
	logger   *zap.Logger
	version  string
}

// New assembles the server. firewall, metrics, registry, and limiter may be
// nil; the corresponding endpoints degrade gracefully.
func New(cfg config.ServerConfig, engine *detect.Engine, intelEngine *intel.Engine,
	firewall *respond.Firewall, store *Store, metrics *observability.Metrics,
	registry *prometheus.Registry, limiter *RateLimiter, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewStore(DefaultStoreCapacity)
	}
	return &Server{
		cfg:      cfg,
		engine:   engine,
		intel:    intelEngine,
		firewall: firewall,
		store:    store,
		metrics:  metrics,
		registry: registry,
		limiter:  limiter,
		logger:   logger,
		version:  version,
	}
}

// Store returns the results store backing the API, for wiring as the
// pipeline's sink.
func (s *Server) Store() *Store {
	return s.store
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware())
		}
		r.Get("/stats", s.handleStats)
		r.Get("/rules", s.handleRules)
		r.Get("/detections", s.handleDetections)
		r.Get("/incidents", s.handleIncidents)
		r.Post("/intel/refresh", s.handleIntelRefresh)
		r.Get("/blocked", s.handleBlocked)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", ww.Status())).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"ioc_set":  s.intel.Size(),
		"rule_set": len(s.engine.Rules()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	dets := s.store.Detections()

	bySeverity := make(map[string]int)
	for _, det := range dets {
		bySeverity[string(det.Severity)]++
	}

	stats := map[string]any{
		"recent_detections": len(dets),
		"recent_incidents":  len(s.store.Incidents()),
		"by_severity":       bySeverity,
		"ioc_set_size":      s.intel.Size(),
	}
	if last := s.intel.LastUpdated(); !last.IsZero() {
		stats["ioc_last_updated"] = last.UTC().Format(time.RFC3339)
	}
	if s.firewall != nil {
		stats["blocked_addresses"] = len(s.firewall.Blocked())
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	type ruleView struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
	}
	rules := s.engine.Rules()
	out := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleView{
			Name:     rule.Name,
			Severity: string(detect.BaseSeverity(rule.Name)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out, "count": len(out)})
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	dets := s.store.Detections()
	writeJSON(w, http.StatusOK, map[string]any{"detections": dets, "count": len(dets)})
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	incidents := s.store.Incidents()
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents, "count": len(incidents)})
}

func (s *Server) handleIntelRefresh(w http.ResponseWriter, r *http.Request) {
	// The engine's own throttle applies; a refresh inside the throttle
	// window is a no-op and still returns the current set state.
	before := s.intel.LastUpdated()
	s.intel.Update(r.Context())

	if s.metrics != nil {
		outcome := "refreshed"
		if s.intel.LastUpdated().Equal(before) {
			outcome = "unchanged"
		}
		s.metrics.IOCRefreshTotal.WithLabelValues(outcome).Inc()
		s.metrics.IOCSetSize.Set(float64(s.intel.Size()))
	}

	resp := map[string]any{"ioc_set_size": s.intel.Size()}
	if last := s.intel.LastUpdated(); !last.IsZero() {
		resp["last_updated"] = last.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	if s.firewall == nil {
		writeJSON(w, http.StatusOK, map[string]any{"blocked": map[string]any{}, "count": 0})
		return
	}
	blocked := s.firewall.Blocked()
	writeJSON(w, http.StatusOK, map[string]any{"blocked": blocked, "count": len(blocked)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
