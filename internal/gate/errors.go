package gate

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goalsmith/goalsmith/internal/ailink"
)

// MsgRateLimited is returned to callers over quota.
const MsgRateLimited = "Rate limit exceeded. Please try again later."

// ValidationError rejects malformed input. Retrying with the same input fails
// again.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string   { return e.Message }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// RateLimitError rejects a caller that has exhausted its quota. It clears
// once older requests leave the window.
type RateLimitError struct {
	Identity string
}

func (e *RateLimitError) Error() string   { return MsgRateLimited }
func (e *RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

// ModerationRejection rejects input that violates the content policy.
type ModerationRejection struct {
	Categories []string
}

func (e *ModerationRejection) Error() string {
	return "Content flagged as inappropriate: " + strings.Join(e.Categories, ", ")
}

func (e *ModerationRejection) StatusCode() int { return http.StatusBadRequest }

// ProviderError reports a failed or unconfigured model provider. Error
// returns a caller-safe message; the cause is available via Unwrap.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string   { return ailink.Describe(e.Err) }
func (e *ProviderError) StatusCode() int { return http.StatusInternalServerError }
func (e *ProviderError) Unwrap() error   { return e.Err }

// Code is a stable identifier of the underlying failure.
func (e *ProviderError) Code() string { return ailink.Code(e.Err) }

// StatusCode returns the HTTP status carried by err, or 500.
func StatusCode(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
