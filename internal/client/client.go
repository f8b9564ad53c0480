// Package client calls a goalsmith server's task generation endpoint. It
// keeps an advisory quota so requests the server would reject are not sent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/ailink"
	"github.com/goalsmith/goalsmith/internal/gate"
	"github.com/goalsmith/goalsmith/internal/observability"
	"github.com/goalsmith/goalsmith/internal/quota"
)

const (
	generatePath   = "/api/v1/tasks/generate"
	defaultTimeout = 90 * time.Second

	// maxResponseBytes bounds how much of a server body is read.
	maxResponseBytes = 1 << 20
)

// ErrAdvisoryLimit is returned without a network call when the local quota is
// spent.
var ErrAdvisoryLimit = errors.New(gate.MsgRateLimited)

// APIError is a non-2xx answer from the server. Message is the server's
// error string, unchanged.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// RateLimited reports whether the server rejected the request for quota.
func (e *APIError) RateLimited() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// Result is an accepted generation.
type Result struct {
	Breakdown         *ailink.TaskBreakdown
	OriginalInput     string
	ResponseID        string
	RemainingRequests int
}

type generateRequest struct {
	Input string `json:"input"`
}

type generateResponse struct {
	Response          *ailink.TaskBreakdown `json:"response"`
	OriginalInput     string                `json:"originalInput"`
	ResponseID        string                `json:"response_id"`
	RemainingRequests int                   `json:"remainingRequests"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// Client talks to one goalsmith server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracker    *quota.ClientTracker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTracker replaces the advisory quota tracker.
func WithTracker(t *quota.ClientTracker) Option {
	return func(c *Client) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New returns a client for baseURL with the default client quota.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		tracker:    quota.NewClientTracker(quota.DefaultClientConfig),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RemainingRequests returns the advisory remaining budget.
func (c *Client) RemainingRequests() int {
	return c.tracker.RemainingRequests()
}

// GenerateTasks asks the server to break input down into tasks. The advisory
// quota is charged first; a spent quota returns ErrAdvisoryLimit.
func (c *Client) GenerateTasks(ctx context.Context, input string) (*Result, error) {
	if !c.tracker.CheckLimit() {
		return nil, ErrAdvisoryLimit
	}

	body, err := json.Marshal(generateRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", generatePath, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var decoded errorResponse
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Message = decoded.Error
			apiErr.Code = decoded.Code
			apiErr.RequestID = decoded.RequestID
		}
		if apiErr.RateLimited() {
			c.tracker.Observe(0)
		}
		logCall(resp.StatusCode, apiErr.RequestID)
		return nil, apiErr
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Response == nil {
		return nil, fmt.Errorf("decode response: missing task breakdown")
	}
	decoded.Response.ResponseID = decoded.ResponseID

	c.tracker.Observe(decoded.RemainingRequests)
	logCall(resp.StatusCode, decoded.ResponseID)

	return &Result{
		Breakdown:         decoded.Response,
		OriginalInput:     decoded.OriginalInput,
		ResponseID:        decoded.ResponseID,
		RemainingRequests: decoded.RemainingRequests,
	}, nil
}

func logCall(status int, id string) {
	if observability.CLILogger == nil {
		return
	}
	observability.CLILogger.Debug("Task generation call completed",
		zap.Int("status", status),
		zap.String("id", id))
}
