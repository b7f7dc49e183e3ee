package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lingoswap/backend/internal/auth"
	"github.com/lingoswap/backend/internal/logging"
	"github.com/lingoswap/backend/internal/middleware"
	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/repositories"
)

const minPasswordLength = 6

// CookieConfig controls the session cookie set on login and signup.
type CookieConfig struct {
	Secure bool
}

// AuthHandler implements account and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	Proxies  ProxyTrust
	Cookies  CookieConfig
	NowFunc  func() time.Time
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, h.Proxies, r, "signup") {
		respondError(ctx, w, http.StatusTooManyRequests, errRateLimited, "too many signup attempts, try again later")
		return
	}

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "authentication services unavailable")
		return
	}

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "invalid request body")
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = models.NormalizeIdentity(req.Username)
	req.Email = models.NormalizeIdentity(req.Email)
	if req.FullName == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "all fields are required")
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warn("signup invalid email", "email", req.Email, "error", err)
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "invalid email address")
		return
	}

	if len(req.Password) < minPasswordLength {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "password must be at least 6 characters")
		return
	}

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		respondError(ctx, w, http.StatusConflict, errConflict, "email already exists, please use a different one")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("signup email lookup failed", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "unable to verify existing accounts")
		return
	}

	if _, err := h.Users.FindByUsername(ctx, req.Username); err == nil {
		respondError(ctx, w, http.StatusConflict, errConflict, "username already taken")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("signup username lookup failed", "error", err, "username", req.Username)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "unable to verify existing accounts")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		FullName:  req.FullName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, errConflict, "account already exists")
			return
		}
		logger.Error("signup failed to create user", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to create account")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("signup failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to create session")
		return
	}

	logger.Info("account created", "userId", user.ID)
	h.setSessionCookie(w, tokens)
	respondJSON(ctx, w, http.StatusCreated, authResponse{User: selfView(user), Tokens: tokens})
}

// Login handles POST /api/v1/auth/login requests. The login field accepts an email address or
// a username.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, h.Proxies, r, "login") {
		respondError(ctx, w, http.StatusTooManyRequests, errRateLimited, "too many login attempts, try again later")
		return
	}

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "authentication services unavailable")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "invalid request body")
		return
	}

	login := req.identifier()
	if login == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "login and password are required")
		return
	}

	user, err := h.Users.FindByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, errInternal, "unable to verify credentials")
			return
		}
		logger.Warn("login unknown account", "login", login)
		respondError(ctx, w, http.StatusUnauthorized, errUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, errUnauthorized, "invalid credentials")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to create session")
		return
	}

	h.setSessionCookie(w, tokens)
	respondJSON(ctx, w, http.StatusOK, authResponse{User: selfView(user), Tokens: tokens})
}

// Logout handles POST /api/v1/auth/logout. It always clears the cookie; a refresh token in the
// body is revoked as well.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if token := strings.TrimSpace(req.RefreshToken); token != "" && h.Sessions != nil {
		h.Sessions.Revoke(ctx, token)
	}

	h.clearSessionCookie(w)
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": "logout successful"})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, errUnauthorized, "unable to refresh session")
			return
		}
		logger.Error("refresh failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "unable to refresh session")
		return
	}

	h.setSessionCookie(w, tokens)
	respondJSON(ctx, w, http.StatusOK, tokenResponse{Tokens: tokens})
}

// Me handles GET /api/v1/auth/me for the authenticated caller.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, errUnauthorized, "account no longer exists")
			return
		}
		logging.FromContext(ctx).Error("load current user failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to load account")
		return
	}

	respondJSON(ctx, w, http.StatusOK, userResponse{User: selfView(user)})
}

// Onboard handles POST /api/v1/auth/onboarding: it stores the caller's language profile and
// marks the account as onboarded, which makes it eligible for recommendations.
func (h AuthHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid onboarding payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, errBadRequest, "invalid request body")
		return
	}

	profile := req.profile()
	if missing := missingProfileFields(profile); len(missing) > 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{
			"error":         errBadRequest,
			"message":       "please fill in all required fields",
			"missingFields": missing,
		})
		return
	}

	user, err := h.Users.UpdateProfile(ctx, userID, profile, h.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, errNotFound, "user not found")
			return
		}
		logger.Error("onboarding update failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "failed to update profile")
		return
	}

	logger.Info("user onboarded")
	respondJSON(ctx, w, http.StatusOK, userResponse{User: selfView(user)})
}

func (h AuthHandler) setSessionCookie(w http.ResponseWriter, tokens models.SessionTokens) {
	maxAge := int(time.Until(tokens.AccessExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		Expires:  tokens.AccessExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func missingProfileFields(profile models.Profile) []string {
	var missing []string
	if profile.NativeLanguage == "" {
		missing = append(missing, "nativeLanguage")
	}
	if profile.LearningLanguage == "" {
		missing = append(missing, "learningLanguage")
	}
	return missing
}

type signUpRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) identifier() string {
	for _, candidate := range []string{r.Login, r.Email, r.Username} {
		if v := models.NormalizeIdentity(candidate); v != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type onboardingRequest struct {
	FullName         string   `json:"fullName"`
	Bio              string   `json:"bio"`
	NativeLanguage   string   `json:"nativeLanguage"`
	LearningLanguage string   `json:"learningLanguage"`
	Location         string   `json:"location"`
	ProfilePic       string   `json:"profilePic"`
	Interests        []string `json:"interests"`
}

func (r onboardingRequest) profile() models.Profile {
	interests := make([]string, 0, len(r.Interests))
	for _, interest := range r.Interests {
		if v := strings.TrimSpace(interest); v != "" {
			interests = append(interests, v)
		}
	}
	return models.Profile{
		FullName:         strings.TrimSpace(r.FullName),
		Bio:              strings.TrimSpace(r.Bio),
		NativeLanguage:   strings.ToLower(strings.TrimSpace(r.NativeLanguage)),
		LearningLanguage: strings.ToLower(strings.TrimSpace(r.LearningLanguage)),
		Location:         strings.TrimSpace(r.Location),
		ProfilePic:       strings.TrimSpace(r.ProfilePic),
		Interests:        interests,
	}
}

// selfUser is the caller's own view of their account, which unlike PublicUser includes the
// email address.
type selfUser struct {
	models.PublicUser
	Email string `json:"email"`
}

func selfView(user models.User) selfUser {
	return selfUser{PublicUser: user.Public(), Email: user.Email}
}

type authResponse struct {
	User   selfUser             `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

type tokenResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
}

type userResponse struct {
	User selfUser `json:"user"`
}
