package monitoring

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lightningnetwork/tnprobe/probecfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExportPrometheusMetrics launches the Prometheus exporter serving gatherer on
// the configured address. The returned server must be shut down by the
// caller.
func ExportPrometheusMetrics(cfg probecfg.Prometheus,
	gatherer prometheus.Gatherer) (*http.Server, net.Addr, error) {

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to listen on %v: %w",
			cfg.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		gatherer, promhttp.HandlerOpts{},
	))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("Prometheus exporter started on %v/metrics", lis.Addr())

	go func() {
		err := srv.Serve(lis)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Prometheus exporter stopped: %v", err)
		}
	}()

	return srv, lis.Addr(), nil
}
