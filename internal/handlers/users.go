package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lingoswap/backend/internal/logging"
	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/repositories"
	"github.com/lingoswap/backend/internal/storage"
)

const maxAvatarBytes = 5 << 20

// UserHandler serves member discovery and profile media endpoints.
type UserHandler struct {
	Users         UserStore
	Relationships RelationshipService
	Avatars       AvatarStorage
	NowFunc       func() time.Time
}

// Recommended handles GET /api/v1/users/recommended?limit=n.
func (h UserHandler) Recommended(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Relationships == nil {
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "recommendation service unavailable")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(ctx, w, http.StatusBadRequest, errBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	users, err := h.Relationships.Recommend(ctx, userID, limit)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	if users == nil {
		users = []models.PublicUser{}
	}
	respondJSON(ctx, w, http.StatusOK, users)
}

// Friends handles GET /api/v1/users/friends.
func (h UserHandler) Friends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Relationships == nil {
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "friend service unavailable")
		return
	}

	friends, err := h.Relationships.ListFriends(ctx, userID)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	if friends == nil {
		friends = []models.PublicUser{}
	}
	respondJSON(ctx, w, http.StatusOK, friends)
}

// UploadAvatar handles PUT /api/v1/users/me/avatar with a multipart "avatar" image field.
func (h UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Avatars == nil || h.Users == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, errUnavailable, "avatar uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+1024)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		logger.Warn("invalid avatar upload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "avatar must be a multipart image under 5MB")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("avatar")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "avatar must be an image")
		return
	}
	if header.Size > maxAvatarBytes {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "avatar must be under 5MB")
		return
	}

	key := storage.AvatarKey(userID, filepath.Ext(header.Filename))
	url, err := h.Avatars.Save(ctx, key, file, contentType)
	if err != nil {
		logger.Error("avatar upload failed", "error", err, "key", key)
		respondError(ctx, w, http.StatusBadGateway, errUnavailable, "failed to store avatar")
		return
	}

	if err := h.Users.SetProfilePic(ctx, userID, url, h.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, errNotFound, "user not found")
			return
		}
		logger.Error("record avatar failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to update profile picture")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"profilePic": url})
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
