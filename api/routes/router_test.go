package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func okPing(context.Context) error { return nil }

func TestHealthLive(t *testing.T) {
	router := NewRouter(testConfig(), logger.Nop(), prometheus.NewRegistry(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", w.Header().Get("X-Storefront-Env"))
	assert.Contains(t, w.Body.String(), `"live"`)
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	deps := map[string]controllers.Pinger{
		"storage": controllers.PingFunc(okPing),
		"redis":   controllers.PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	router := NewRouter(testConfig(), logger.Nop(), prometheus.NewRegistry(), deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.NotContains(t, w.Body.String(), `"storage"`)

	deps["redis"] = controllers.PingFunc(okPing)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	poller := metrics.NewPollerMetrics(reg)
	poller.IncRound()

	router := NewRouter(testConfig(), logger.Nop(), reg, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "storefront_order_poll_rounds_total 1"), w.Body.String())
}
