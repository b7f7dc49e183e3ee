package handlers

import (
	"net/http"

	"github.com/lingoswap/backend/internal/logging"
)

// ChatHandler hands out provider tokens so clients can connect to chat and video calls.
type ChatHandler struct {
	Tokens ChatTokenMinter
}

// Token handles GET /api/v1/chat/token.
func (h ChatHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Tokens == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, errUnavailable, "chat is not configured")
		return
	}

	token, err := h.Tokens.MintToken(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("mint chat token failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to create chat token")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"token": token, "apiKey": h.Tokens.APIKey()})
}
