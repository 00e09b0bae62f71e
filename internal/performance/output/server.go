package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// MetricsNamespace prefixes every exported Prometheus metric.
const MetricsNamespace = "volley"

// MetricsServer exposes a running test over HTTP:
//
//	GET /metrics   Prometheus exposition of the collector
//	GET /progress  live progress as JSON
//	GET /healthz   liveness
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   logrus.FieldLogger
	started  bool
	done     chan error
}

// NewMetricsServer binds addr and prepares the routes. Use ":0" for an
// ephemeral port; Addr reports the bound address.
func NewMetricsServer(addr string, collector *metrics.Collector, progress ProgressSource, logger logrus.FieldLogger) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics.NewPrometheusCollector(collector, MetricsNamespace)); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(progress.Progress()); err != nil {
			logger.WithError(err).Debug("failed to write progress")
		}
	}).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &MetricsServer{
		server: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
		done:     make(chan error, 1),
	}, nil
}

// Addr returns the address the server listens on.
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background.
func (s *MetricsServer) Start() {
	s.started = true
	s.logger.WithField("addr", s.Addr()).Info("metrics endpoint listening")
	go func() {
		err := s.server.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if !s.started {
		return s.listener.Close()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
