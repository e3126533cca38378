package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/chainops/snapshot-publisher/pkg/metrics"
)

const artifactsRefreshInterval = 30 * time.Second

type MetricServer struct {
	bindAddress    string
	httpServer     *http.Server
	listener       net.Listener
	countArtifacts func() int
}

// NewMetricServer serves the prometheus registry on its own listener.
// countArtifacts feeds the artifacts gauge between jobs.
func NewMetricServer(bindAddress string, listener net.Listener, countArtifacts func() int) *MetricServer {
	router := chi.NewRouter()

	prometheusMetricHandler := metrics.NewPrometheusMetricsHandler()
	router.Handle("/metrics", prometheusMetricHandler.Handler())

	return &MetricServer{
		bindAddress:    bindAddress,
		listener:       listener,
		countArtifacts: countArtifacts,
		httpServer: &http.Server{
			Addr:    bindAddress,
			Handler: router,
		},
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("metrics_server").Info("metrics server terminated")
	}()

	// Jitter keeps a fleet of these from hitting the filesystem in lockstep.
	ticker := jitterbug.New(artifactsRefreshInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateArtifactsCountMetric(m.countArtifacts())
			case <-ctx.Done():
				return
			}
		}
	}()

	zap.S().Named("metrics_server").Infof("serving metrics: %s", m.bindAddress)
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
