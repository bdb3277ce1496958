package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
)

// NewRouter serves /metrics from gatherer and a plain /healthz probe.
func NewRouter(gatherer prometheus.Gatherer) *mux.Router {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// MetricsServer runs the metrics router until its context is cancelled.
type MetricsServer struct {
	srv *http.Server
	log logging.Logger
}

// NewMetricsServer prepares a server on addr (host:port).
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, log logging.Logger) *MetricsServer {
	if log == nil {
		log = logging.Noop()
	}
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Serve listens on the configured address and blocks until ctx is done or
// the listener fails. The server is shut down gracefully on cancellation.
func (s *MetricsServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "metrics server listening", logging.String("address", lis.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn(ctx, "metrics server shutdown failed", logging.Err(err))
		}
		return nil
	}
}
