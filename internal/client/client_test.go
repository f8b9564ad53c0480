package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalsmith/goalsmith/internal/quota"
)

func newTracker(limit int) *quota.ClientTracker {
	return quota.NewClientTracker(quota.Config{Window: time.Hour, MaxRequests: limit})
}

func TestGenerateTasksSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/tasks/generate", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Learn Go", body["input"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"goal":"Learn Go","tasks":[{"order":1,"task":"Take the tour"}]},"originalInput":"Learn Go","response_id":"resp_9","remainingRequests":1}`))
	}))
	defer srv.Close()

	tracker := newTracker(5)
	c := New(srv.URL+"/", WithTracker(tracker))

	result, err := c.GenerateTasks(context.Background(), "Learn Go")
	require.NoError(t, err)
	assert.Equal(t, "resp_9", result.ResponseID)
	assert.Equal(t, "resp_9", result.Breakdown.ResponseID)
	assert.Equal(t, 1, result.RemainingRequests)
	require.Len(t, result.Breakdown.Tasks, 1)

	// Local budget tightened to the server's figure.
	assert.Equal(t, 1, c.RemainingRequests())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateTasksAdvisoryLimitSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"response":{"goal":"g","tasks":[{"order":1,"task":"t"}]},"originalInput":"g","remainingRequests":9}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTracker(newTracker(2)))

	for i := 0; i < 2; i++ {
		_, err := c.GenerateTasks(context.Background(), "g")
		require.NoError(t, err)
	}

	_, err := c.GenerateTasks(context.Background(), "g")
	require.ErrorIs(t, err, ErrAdvisoryLimit)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", err.Error())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateTasksServerErrorVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Content flagged as inappropriate: violence","code":"CONTENT_FLAGGED","request_id":"req-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTracker(newTracker(5)))
	_, err := c.GenerateTasks(context.Background(), "something")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Content flagged as inappropriate: violence", apiErr.Error())
	assert.Equal(t, "CONTENT_FLAGGED", apiErr.Code)
	assert.Equal(t, "req-1", apiErr.RequestID)
	assert.False(t, apiErr.RateLimited())

	// The attempt still counts locally.
	assert.Equal(t, 4, c.RemainingRequests())
}

func TestGenerateTasksServerRateLimitDrainsLocalBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Rate limit exceeded. Please try again later.","code":"RATE_LIMITED"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTracker(newTracker(5)))
	_, err := c.GenerateTasks(context.Background(), "g")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.RateLimited())
	assert.Equal(t, 0, c.RemainingRequests())

	_, err = c.GenerateTasks(context.Background(), "g")
	assert.ErrorIs(t, err, ErrAdvisoryLimit)
}

func TestGenerateTasksNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, WithTracker(newTracker(5)))
	_, err := c.GenerateTasks(context.Background(), "g")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "server returned status 502", apiErr.Error())
}

func TestGenerateTasksMissingBreakdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"originalInput":"g","remainingRequests":3}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTracker(newTracker(5)))
	_, err := c.GenerateTasks(context.Background(), "g")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing task breakdown")
}
