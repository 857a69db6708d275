package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

func TestMetricsSink_CountsAndForwards(t *testing.T) {
	m := NewMetrics()

	var forwarded []auth.ActivityEvent
	sink := m.Sink(auth.ActivitySinkFunc(func(ctx context.Context, e auth.ActivityEvent) error {
		forwarded = append(forwarded, e)
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLogin}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLogin}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginFailed}))

	assert.Len(t, forwarded, 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("LOGIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("LOGIN_FAILED")))
}

func TestMetricsSink_CountsDownstreamErrors(t *testing.T) {
	m := NewMetrics()
	sink := m.Sink(auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("db down")
	}))

	err := sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventSSOLogin})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("SSO_LOGIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkErrors.WithLabelValues("SSO_LOGIN")))
}

func TestMetricsSink_NilNext(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.Sink(nil).Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLogin}))
}

func TestMetrics_HTTP(t *testing.T) {
	m := NewMetrics()

	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/metrics", m.Handler())
	app.Get("/accounts/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/accounts/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/accounts/:id", "204")))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
