package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	fulmenerrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/goalsmith/goalsmith/internal/ailink"
	apperrors "github.com/goalsmith/goalsmith/internal/errors"
	"github.com/goalsmith/goalsmith/internal/gate"
	"github.com/goalsmith/goalsmith/internal/quota"
	"github.com/goalsmith/goalsmith/internal/server/middleware"
)

// DefaultMaxBodyBytes caps the request body of the generation endpoint.
const DefaultMaxBodyBytes int64 = 64 << 10

// Processor runs a generation request through the abuse gate.
type Processor interface {
	Process(ctx context.Context, identity string, input any) (*gate.Result, error)
}

// GenerateRequest is the generation request body.
type GenerateRequest struct {
	Input any `json:"input"`
}

// GenerateResponse is the body of an accepted generation request.
type GenerateResponse struct {
	Response          *ailink.TaskBreakdown `json:"response"`
	OriginalInput     string                `json:"originalInput"`
	ResponseID        string                `json:"response_id,omitempty"`
	RemainingRequests int                   `json:"remainingRequests"`
}

// TasksHandler serves POST /api/v1/tasks/generate.
type TasksHandler struct {
	processor    Processor
	maxBodyBytes int64
}

// NewTasksHandler returns a handler over processor. maxBodyBytes <= 0 uses
// DefaultMaxBodyBytes.
func NewTasksHandler(processor Processor, maxBodyBytes int64) *TasksHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &TasksHandler{processor: processor, maxBodyBytes: maxBodyBytes}
}

// Generate handles a generation request. A body that cannot be decoded is
// passed on as a missing input so the quota is still charged first.
func (h *TasksHandler) Generate(w http.ResponseWriter, r *http.Request) {
	identity := quota.IdentityFromRequest(r)

	var req GenerateRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Input = nil
	}

	ctx := ailink.WithRequestID(r.Context(), middleware.GetRequestID(r.Context()))
	result, err := h.processor.Process(ctx, identity, req.Input)
	if err != nil {
		apperrors.RespondWithError(w, r, gateEnvelope(ctx, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(GenerateResponse{
		Response:          result.Breakdown,
		OriginalInput:     result.OriginalInput,
		ResponseID:        result.ResponseID,
		RemainingRequests: result.RemainingRequests,
	})
}

// gateEnvelope converts a gate rejection into an error envelope whose
// message is the user-facing error string.
func gateEnvelope(ctx context.Context, err error) *fulmenerrors.ErrorEnvelope {
	var (
		rateErr       *gate.RateLimitError
		validationErr *gate.ValidationError
		moderationErr *gate.ModerationRejection
		providerErr   *gate.ProviderError
	)

	switch {
	case errors.As(err, &rateErr):
		return apperrors.NewRateLimitedError(rateErr.Error())
	case errors.As(err, &validationErr):
		return apperrors.NewValidationError(validationErr.Error())
	case errors.As(err, &moderationErr):
		return apperrors.NewContentFlaggedError(moderationErr.Error(), moderationErr.Categories)
	case errors.As(err, &providerErr):
		env := apperrors.WrapProviderError(ctx, providerErr.Err, providerErr.Error())
		return env.WithDetails(map[string]interface{}{"reason": providerErr.Code()})
	default:
		return apperrors.WrapInternal(ctx, err, "task generation failed")
	}
}
