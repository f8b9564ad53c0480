package integration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/gate"
	"github.com/goalsmith/goalsmith/internal/observability"
	"github.com/goalsmith/goalsmith/internal/quota"
	"github.com/goalsmith/goalsmith/internal/server"
	"github.com/goalsmith/goalsmith/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

// listenOrSkip binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func listenOrSkip(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

// newProvider fakes the moderation and chat completion endpoints. Goals
// mentioning "fight" are flagged.
func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	ts := &httptest.Server{
		Listener: listenOrSkip(t),
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Input    string `json:"input"`
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)

			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/moderations":
				flagged := strings.Contains(body.Input, "fight")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": "modr-1",
					"results": []map[string]any{{
						"flagged":    flagged,
						"categories": map[string]bool{"violence": flagged},
					}},
				})
			case "/chat/completions":
				answer, _ := json.Marshal(map[string]any{
					"goal": "Run a marathon",
					"tasks": []map[string]any{
						{"order": 2, "task": "Build weekly mileage"},
						{"order": 1, "task": "Pick a race"},
					},
				})
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": "chatcmpl-1",
					"choices": []map[string]any{{
						"message":       map[string]any{"content": string(answer)},
						"finish_reason": "stop",
					}},
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

func newGoalServer(t *testing.T, providerURL string, limit int) (*httptest.Server, *http.Client) {
	t.Helper()

	cfg := ailink.DefaultConfig()
	cfg.BaseURL = providerURL
	cfg.APIKey = "test-key"
	planner := ailink.NewPlanner(cfg)

	tracker := quota.NewServerTracker(quota.Config{Window: time.Hour, MaxRequests: limit})
	processor := gate.New(tracker, planner)
	srv := server.New(server.DefaultOptions(), processor, handlers.NewHealthManager("test"))

	ts := &httptest.Server{
		Listener: listenOrSkip(t),
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func generate(t *testing.T, client *http.Client, url, ip, input string) (int, map[string]any) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"input": input})
	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/tasks/generate", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestTaskGeneration_EndToEnd(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "info"})

	provider := newProvider(t)
	ts, client := newGoalServer(t, provider.URL, 3)

	status, body := generate(t, client, ts.URL, "198.51.100.1", "Run a marathon")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Run a marathon", body["originalInput"])
	assert.Equal(t, "chatcmpl-1", body["response_id"])
	assert.Equal(t, float64(2), body["remainingRequests"])

	tasks := body["response"].(map[string]any)["tasks"].([]any)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Pick a race", tasks[0].(map[string]any)["task"])

	status, body = generate(t, client, ts.URL, "198.51.100.1", "Win every fight")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Content flagged as inappropriate: violence", body["error"])

	status, body = generate(t, client, ts.URL, "198.51.100.1", "   ")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "input cannot be empty", body["error"])

	// The budget was spent by the three requests above, rejected ones included.
	status, body = generate(t, client, ts.URL, "198.51.100.1", "Run a marathon")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, gate.MsgRateLimited, body["error"])

	status, _ = generate(t, client, ts.URL, "198.51.100.2", "Run a marathon")
	assert.Equal(t, http.StatusOK, status)
}

func TestTaskGeneration_ConcurrentCallersRespectQuota(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "warn"})

	const limit = 5
	const perCaller = 12
	const callers = 4

	provider := newProvider(t)
	ts, client := newGoalServer(t, provider.URL, limit)

	var mu sync.Mutex
	accepted := map[string]int{}
	limited := map[string]int{}

	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		ip := fmt.Sprintf("203.0.113.%d", c+1)
		for i := 0; i < perCaller; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				payload := strings.NewReader(`{"input":"Run a marathon"}`)
				req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/tasks/generate", payload)
				req.Header.Set("X-Forwarded-For", ip)
				resp, err := client.Do(req)
				if err != nil {
					return
				}
				_ = resp.Body.Close()

				mu.Lock()
				defer mu.Unlock()
				switch resp.StatusCode {
				case http.StatusOK:
					accepted[ip]++
				case http.StatusTooManyRequests:
					limited[ip]++
				}
			}()
		}
	}
	wg.Wait()

	for c := 0; c < callers; c++ {
		ip := fmt.Sprintf("203.0.113.%d", c+1)
		assert.Equal(t, limit, accepted[ip], ip)
		assert.Equal(t, perCaller-limit, limited[ip], ip)
	}
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "info"})

	initMetricsOrSkip(t)

	provider := newProvider(t)
	ts, client := newGoalServer(t, provider.URL, 2)

	for i := 0; i < 4; i++ {
		_, _ = generate(t, client, ts.URL, "192.0.2.9", "Run a marathon")
	}
	resp, err := client.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", contentType)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.Contains(t, metricsContent, "test_gate_outcomes_total", "Should have gate outcome metrics")
	assert.Contains(t, metricsContent, "test_quota_decisions_total", "Should have quota metrics")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "info"})

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	provider := newProvider(t)
	ts, client := newGoalServer(t, provider.URL, 2)

	status, _ := generate(t, client, ts.URL, "192.0.2.10", "Run a marathon")
	assert.Equal(t, http.StatusOK, status)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
