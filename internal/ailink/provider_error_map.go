package ailink

import (
	"context"
	"errors"

	"github.com/goalsmith/goalsmith/internal/ailink/driver"
)

var (
	// ErrNotConfigured is returned when no API key is configured.
	ErrNotConfigured = errors.New("ailink: provider api key not configured")

	// ErrIncomplete is returned when the model stops before producing a
	// complete structured answer.
	ErrIncomplete = errors.New("ailink: task generation incomplete")

	// ErrRefused is returned when the model declines to answer.
	ErrRefused = errors.New("ailink: model refused the request")

	// ErrMalformed is returned when the structured answer cannot be decoded.
	ErrMalformed = errors.New("ailink: malformed task breakdown")
)

// Describe maps a planner failure to a message safe to show callers. Provider
// bodies and keys never appear in the result.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "task generation service temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "task generation timed out"
	case errors.Is(err, context.Canceled):
		return "task generation was cancelled"
	case errors.Is(err, ErrRefused):
		return "the model declined to break down this goal"
	case errors.Is(err, ErrIncomplete):
		return "task generation did not complete"
	case errors.Is(err, ErrMalformed):
		return "task generation returned an unreadable response"
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		switch {
		case status == 401 || status == 403:
			return "provider authentication failed"
		case status == 429:
			return "provider rate limited"
		case status >= 500 && status <= 599:
			return "provider unavailable"
		case status >= 400 && status <= 499:
			return "provider rejected request"
		}
	}

	return "task generation failed"
}

// Code returns a stable identifier for a planner failure, used in logs and
// error details.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "AILINK_NOT_CONFIGURED"
	case errors.Is(err, context.DeadlineExceeded):
		return "AILINK_PROVIDER_TIMEOUT"
	case errors.Is(err, ErrRefused):
		return "AILINK_REFUSED"
	case errors.Is(err, ErrIncomplete):
		return "AILINK_INCOMPLETE"
	case errors.Is(err, ErrMalformed):
		return "AILINK_MALFORMED"
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		switch {
		case status == 401 || status == 403:
			return "AILINK_PROVIDER_AUTH"
		case status == 429:
			return "AILINK_PROVIDER_RATE_LIMIT"
		case status >= 500 && status <= 599:
			return "AILINK_PROVIDER_UNAVAILABLE"
		case status >= 400 && status <= 499:
			return "AILINK_PROVIDER_BAD_REQUEST"
		}
	}
	return "AILINK_PROVIDER_ERROR"
}
