package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"task-manager/api/internal/config"
	"task-manager/api/internal/logging"
	"task-manager/api/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = ":memory:"
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestApplication(t *testing.T, cfg *config.Config) *application {
	t.Helper()
	app, err := newApplication(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { app.close() })
	return app
}

func call(app *application, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.5:1234"
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func TestApplicationStartup_SeedsSampleTasks(t *testing.T) {
	app := newTestApplication(t, testConfig())

	w := call(app, "GET", "/api/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)

	var tasks []models.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 3)

	w = call(app, "GET", "/api/tasks/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats["total"])
}

func TestApplicationStartup_WithoutSeed(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Seed = false
	app := newTestApplication(t, cfg)

	w := call(app, "GET", "/api/tasks", "")
	assert.Equal(t, "[]", w.Body.String())
}

func TestOperationalEndpoints(t *testing.T) {
	app := newTestApplication(t, testConfig())

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		w := call(app, "GET", path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := call(app, "GET", "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var health struct {
		Checks map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Contains(t, health.Checks, "database")
	assert.Contains(t, health.Checks, "cache")
}

func TestRedisBackedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Host = host
	cfg.Redis.Port = port
	app := newTestApplication(t, cfg)

	w := call(app, "GET", "/api/tasks/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mr.Exists(cfg.Redis.Prefix+"task:1"))

	w = call(app, "POST", "/api/tasks/1/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)

	var cached models.Task
	raw, err := mr.Get(cfg.Redis.Prefix + "task:1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))

	var toggled models.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.Equal(t, toggled.Status, cached.Status.String(), "cache holds the toggled task")
}

func TestRedisUnavailableFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")
	mr.Close()

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Host = host
	cfg.Redis.Port = port
	cfg.Redis.MaxRetries = -1
	app := newTestApplication(t, cfg)

	assert.NotContains(t, app.cache.Stats(), "l2")

	w := call(app, "POST", "/api/tasks", `{"title":"works without redis"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRedisOutageKeepsServiceReady(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Host = host
	cfg.Redis.Port = port
	cfg.Redis.MaxRetries = -1
	app := newTestApplication(t, cfg)
	require.Contains(t, app.cache.Stats(), "l2")

	mr.Close()

	assert.Equal(t, http.StatusOK, call(app, "GET", "/ready", "").Code)

	w := call(app, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
}

func TestRateLimitApplied(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMin = 1
	cfg.RateLimit.BurstSize = 1
	app := newTestApplication(t, cfg)

	assert.Equal(t, http.StatusOK, call(app, "GET", "/api/tasks", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(app, "GET", "/api/tasks", "").Code)
	assert.Equal(t, http.StatusOK, call(app, "GET", "/live", "").Code, "operational endpoints are not limited")
}

func TestPanicsBecomeGenericErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Options{Level: "info", Format: "json"})
	app, err := newApplication(context.Background(), testConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { app.close() })
	app.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := call(app, "GET", "/boom", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"An error occurred while processing your request"}`, w.Body.String())

	var requestLines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if json.Unmarshal([]byte(line), &entry) == nil && entry["msg"] == "HTTP request" {
			requestLines = append(requestLines, entry)
		}
	}
	require.Len(t, requestLines, 1, "a panicking request still gets its access log line")
	assert.Equal(t, "/boom", requestLines[0]["path"])
	assert.Equal(t, float64(http.StatusInternalServerError), requestLines[0]["status"])
	assert.Equal(t, "error", requestLines[0]["level"])
}

func TestCreateThroughFullStack(t *testing.T) {
	app := newTestApplication(t, testConfig())

	body, _ := json.Marshal(map[string]interface{}{
		"title":    "Integration",
		"priority": "Low",
		"dueDate":  "2031-05-01",
	})
	w := call(app, "POST", "/api/tasks", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	location := w.Header().Get("Location")
	w = call(app, "GET", location, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(`"dueDate":"2031-05-01T00:00:00Z"`)), w.Body.String())
}
