package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lingoswap/backend/internal/auth"
	"github.com/lingoswap/backend/internal/logging"
	"github.com/lingoswap/backend/internal/relationships"
)

// Error kinds used by responses that do not originate in the relationship engine.
const (
	errBadRequest   = "validation"
	errUnauthorized = "unauthorized"
	errConflict     = "conflict"
	errNotFound     = "not_found"
	errRateLimited  = "rate_limited"
	errUnavailable  = "unavailable"
	errInternal     = "internal"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, kind, message string) {
	respondJSON(ctx, w, status, errorResponse{Error: kind, Message: message})
}

// respondRelationshipError translates an engine failure into its HTTP status.
func respondRelationshipError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := relationships.KindOf(err)
	message := "internal error"
	var relErr *relationships.Error
	if errors.As(err, &relErr) && relErr.Message != "" {
		message = relErr.Message
	}

	respondError(ctx, w, relationshipStatus(kind), string(kind), message)
}

func relationshipStatus(kind relationships.Kind) int {
	switch kind {
	case relationships.KindValidation, relationships.KindSelfRequest, relationships.KindAlreadyFriends:
		return http.StatusBadRequest
	case relationships.KindDuplicateRequest, relationships.KindInconsistentState:
		return http.StatusConflict
	case relationships.KindNotFound:
		return http.StatusNotFound
	case relationships.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// sessionUser returns the authenticated caller, answering 401 when the request was not routed
// through the authentication middleware.
func sessionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		respondError(r.Context(), w, http.StatusUnauthorized, errUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}
