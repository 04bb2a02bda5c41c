package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/ivrwalker/internal/explore/correlator"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
	"github.com/MrWong99/ivrwalker/internal/health"
	"github.com/MrWong99/ivrwalker/internal/observe"
)

// defaultReadHeaderTimeout guards against slow-header-write denial of
// service on the listening socket.
const defaultReadHeaderTimeout = 5 * time.Second

// ServerConfig assembles the full HTTP surface: webhook, graph/stats read
// API, health probes, and the Prometheus scrape endpoint.
type ServerConfig struct {
	Addr       string
	Correlator *correlator.Correlator
	Graph      *graph.Graph
	Stats      *stats.Tracker
	Metrics    *observe.Metrics
	Checkers   []health.Checker
}

// NewServer builds an [http.Server] serving every read-only and webhook
// route behind [observe.Middleware].
func NewServer(cfg ServerConfig) *http.Server {
	mux := http.NewServeMux()

	New(cfg.Correlator, cfg.Graph, cfg.Stats).Register(mux)
	health.New(cfg.Checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if cfg.Metrics != nil {
		handler = observe.Middleware(cfg.Metrics)(mux)
	}

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
}
