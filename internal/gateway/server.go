// Package gateway runs the router's HTTP servers: the listener serving
// the request pipeline and the admin server exposing health, readiness,
// and metrics.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/metrics"
	"github.com/canmogol/archura-router/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

// Server pairs the routing listener with the admin listener.
type Server struct {
	store     *config.Store
	metrics   *metrics.Metrics
	ready     func() bool
	startTime time.Time

	main  *http.Server
	admin *http.Server
}

// NewServer wires the middleware chain around the pipeline and builds
// both listeners. ready reports whether the initial configuration has
// been loaded; nil means always ready. metrics may be nil.
func NewServer(settings *config.Settings, pipeline http.Handler, store *config.Store, m *metrics.Metrics, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Server{
		store:     store,
		metrics:   m,
		ready:     ready,
		startTime: time.Now(),
	}

	chain := middleware.NewChain(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
	)
	s.main = &http.Server{
		Addr:              settings.ListenAddress,
		Handler:           chain.Then(pipeline),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.admin = &http.Server{
		Addr:         settings.AdminAddress,
		Handler:      s.adminHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves both listeners until ctx is canceled, then shuts them
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("router listening", zap.String("address", s.main.Addr))
		if err := s.main.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logging.Info("admin server listening", zap.String("address", s.admin.Addr))
		if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.main.Shutdown(shutdownCtx); err != nil {
			logging.Error("router shutdown error", zap.Error(err))
		}
		if err := s.admin.Shutdown(shutdownCtx); err != nil {
			logging.Error("admin server shutdown error", zap.Error(err))
		}
		return ctx.Err()
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// adminHandler exposes the operational endpoints.
func (s *Server) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/domains", s.handleDomains)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"domains": len(s.store.Snapshot().Domains),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "not_ready",
			"reason": "initial configuration not loaded",
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Snapshot()
	type domainInfo struct {
		Host            string `json:"host"`
		Name            string `json:"name"`
		DefaultTenantID string `json:"defaultTenantId,omitempty"`
		Tenants         int    `json:"tenants"`
	}
	result := make([]domainInfo, 0, len(snapshot.Domains))
	for host, domain := range snapshot.Domains {
		result = append(result, domainInfo{
			Host:            host,
			Name:            domain.Name,
			DefaultTenantID: domain.DefaultTenantID,
			Tenants:         len(domain.Tenants),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
