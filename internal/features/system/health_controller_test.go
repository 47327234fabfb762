package system

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestApp(checks map[string]Pinger) *fiber.App {
	app := fiber.New()
	NewSystemApi(newHealthController(checks, zap.NewNop()), metrics.NewMetrics()).Setup(app)
	return app
}

func TestHealth_OK(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	defer client.Close()

	app := newTestApp(map[string]Pinger{
		"mongo":     pingFunc(func(context.Context) error { return nil }),
		"broadcast": broadcast.NewRedisStore(client, zap.NewNop()),
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"mongo": "ok", "broadcast": "ok"}, body.Checks)
}

func TestHealth_Unavailable(t *testing.T) {
	app := newTestApp(map[string]Pinger{
		"mongo":     pingFunc(func(context.Context) error { return nil }),
		"broadcast": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "connection refused", body.Checks["broadcast"])
	assert.Equal(t, "ok", body.Checks["mongo"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(map[string]Pinger{})

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "kod_permission_subscriptions_active"))
}
