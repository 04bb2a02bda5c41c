package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/ivrwalker/internal/explore/correlator"
	"github.com/MrWong99/ivrwalker/internal/explore/graph"
	"github.com/MrWong99/ivrwalker/internal/explore/stats"
	"github.com/MrWong99/ivrwalker/internal/health"
	"github.com/MrWong99/ivrwalker/internal/httpapi"
)

func TestNewServer_RoutesHealthAndMetricsAndStats(t *testing.T) {
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:       ":0",
		Correlator: correlator.New(),
		Graph:      graph.New(),
		Stats:      stats.New(),
		Checkers: []health.Checker{
			{Name: "noop", Check: func(ctx context.Context) error { return nil }},
		},
	})

	cases := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/stats", http.StatusOK},
		{http.MethodGet, "/graph", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		if rec.Code != tc.wantStatus {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, tc.wantStatus)
		}
	}
}
