package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sentinel/mpc-engine/internal/cluster"
	"github.com/sentinel/mpc-engine/internal/model"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error to its HTTP status. Unmapped errors are 500.
func statusFor(err error) int {
	switch {
	// A recorded abort may wrap any kind the cluster named.
	case errors.Is(err, model.ErrAbortedComputation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrDuplicateComputation),
		errors.Is(err, model.ErrDuplicateCallback):
		return http.StatusConflict
	case errors.Is(err, model.ErrClusterNotSet),
		errors.Is(err, cluster.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrUnauthorizedCallback):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrRecordNotFound),
		errors.Is(err, model.ErrUnknownCircuit):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidPositionState),
		errors.Is(err, model.ErrOrderExpired),
		errors.Is(err, model.ErrInsufficientLiquidity),
		errors.Is(err, model.ErrSlippageExceeded),
		errors.Is(err, model.ErrInvalidOraclePrice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidArguments),
		errors.Is(err, model.ErrMalformedOutput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Kind: model.ErrorKind(err)}
	if errors.Is(err, cluster.ErrQueueFull) {
		resp.Kind = "QueueFull"
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}
