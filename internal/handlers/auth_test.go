package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lingoswap/backend/internal/auth"
	"github.com/lingoswap/backend/internal/middleware"
	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/repositories"
)

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func newSessionManager() *auth.Manager {
	return auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore(), []byte("test-secret"))
}

func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func seedAccount(t *testing.T, store *repositories.MemoryStore, id, username, email, password string) models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	user := models.User{
		ID:        id,
		FullName:  "Test " + username,
		Username:  username,
		Email:     email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.SessionCookieName {
			return cookie
		}
	}
	return nil
}

func TestAuthHandlerSignUp(t *testing.T) {
	store := repositories.NewMemoryStore()
	handler := AuthHandler{Users: store, Sessions: newSessionManager(), Cookies: CookieConfig{Secure: true}}

	body := jsonBody(t, signUpRequest{FullName: "Ana Lima", Username: " AnaL ", Email: "Ana@Example.com", Password: "supersafe"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", body)
	rec := httptest.NewRecorder()

	handler.SignUp(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}
	if resp.User.Username != "anal" || resp.User.Email != "ana@example.com" || resp.User.IsOnboarded {
		t.Fatalf("unexpected user in response: %+v", resp.User)
	}

	cookie := sessionCookie(rec)
	if cookie == nil || cookie.Value != resp.Tokens.AccessToken {
		t.Fatalf("expected session cookie carrying the access token, got %+v", cookie)
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected hardened cookie, got %+v", cookie)
	}

	stored, err := store.FindByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}
}

func TestAuthHandlerSignUpFailures(t *testing.T) {
	valid := signUpRequest{FullName: "Ana Lima", Username: "ana", Email: "ana@example.com", Password: "supersafe"}

	cases := []struct {
		name       string
		handler    func(store *repositories.MemoryStore) AuthHandler
		body       []byte
		wantStatus int
	}{
		{"missingDeps", func(*repositories.MemoryStore) AuthHandler { return AuthHandler{} }, mustJSON(valid), http.StatusInternalServerError},
		{"badJSON", nil, []byte("{"), http.StatusBadRequest},
		{"missingFields", nil, mustJSON(signUpRequest{Email: "ana@example.com", Password: "supersafe"}), http.StatusBadRequest},
		{"invalidEmail", nil, mustJSON(signUpRequest{FullName: "A", Username: "a", Email: "nope", Password: "supersafe"}), http.StatusBadRequest},
		{"shortPassword", nil, mustJSON(signUpRequest{FullName: "A", Username: "a", Email: "a@example.com", Password: "12345"}), http.StatusBadRequest},
		{"existingEmail", nil, mustJSON(signUpRequest{FullName: "A", Username: "other", Email: "TAKEN@example.com", Password: "supersafe"}), http.StatusConflict},
		{"existingUsername", nil, mustJSON(signUpRequest{FullName: "A", Username: "Taken", Email: "fresh@example.com", Password: "supersafe"}), http.StatusConflict},
		{"rateLimited", func(store *repositories.MemoryStore) AuthHandler {
			return AuthHandler{Users: store, Sessions: newSessionManager(), Limiter: denyLimiter{}}
		}, mustJSON(valid), http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repositories.NewMemoryStore()
			seedAccount(t, store, "existing", "taken", "taken@example.com", "password123")

			handler := AuthHandler{Users: store, Sessions: newSessionManager()}
			if tc.handler != nil {
				handler = tc.handler(store)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(tc.body))
			rec := httptest.NewRecorder()

			handler.SignUp(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}

			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Error == "" || resp.Message == "" {
				t.Fatalf("expected error body, got %q (%v)", rec.Body.String(), err)
			}
		})
	}
}

func mustJSON(payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return body
}

func TestAuthHandlerLogin(t *testing.T) {
	store := repositories.NewMemoryStore()
	seedAccount(t, store, "user-1", "login_user", "login@example.com", "password123")
	handler := AuthHandler{Users: store, Sessions: newSessionManager()}

	cases := []struct {
		name       string
		body       loginRequest
		wantStatus int
	}{
		{"byEmail", loginRequest{Email: "LOGIN@example.com", Password: "password123"}, http.StatusOK},
		{"byUsername", loginRequest{Username: "Login_User", Password: "password123"}, http.StatusOK},
		{"byLoginField", loginRequest{Login: "login_user", Password: "password123"}, http.StatusOK},
		{"wrongPassword", loginRequest{Email: "login@example.com", Password: "nope"}, http.StatusUnauthorized},
		{"unknownUser", loginRequest{Email: "ghost@example.com", Password: "password123"}, http.StatusUnauthorized},
		{"missingPassword", loginRequest{Email: "login@example.com"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", jsonBody(t, tc.body))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}

			var resp authResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Tokens.AccessToken == "" || resp.User.ID != "user-1" {
				t.Fatalf("unexpected response %+v", resp)
			}
			if sessionCookie(rec) == nil {
				t.Fatal("expected session cookie")
			}
		})
	}
}

func TestAuthHandlerRefresh(t *testing.T) {
	manager := newSessionManager()
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Sessions: manager}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", jsonBody(t, refreshRequest{RefreshToken: tokens.RefreshToken}))
	rec := httptest.NewRecorder()

	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token to be issued")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", jsonBody(t, refreshRequest{RefreshToken: tokens.RefreshToken}))
	rec = httptest.NewRecorder()
	handler.Refresh(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated token to be rejected, got %d", rec.Code)
	}
}

func TestAuthHandlerLogout(t *testing.T) {
	manager := newSessionManager()
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	handler := AuthHandler{Sessions: manager}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", jsonBody(t, refreshRequest{RefreshToken: tokens.RefreshToken}))
	rec := httptest.NewRecorder()

	handler.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	cookie := sessionCookie(rec)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected cookie to be cleared, got %+v", cookie)
	}
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); err == nil {
		t.Fatal("expected refresh token to be revoked")
	}

	rec = httptest.NewRecorder()
	handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout without body to succeed, got %d", rec.Code)
	}
}

func TestAuthHandlerMe(t *testing.T) {
	store := repositories.NewMemoryStore()
	seedAccount(t, store, "user-1", "me_user", "me@example.com", "password123")
	handler := AuthHandler{Users: store, Sessions: newSessionManager()}

	rec := httptest.NewRecorder()
	handler.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Me(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password leaked in response: %s", rec.Body.String())
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Email != "me@example.com" || resp.User.Username != "me_user" {
		t.Fatalf("unexpected user %+v", resp.User)
	}
}

func TestAuthHandlerOnboard(t *testing.T) {
	store := repositories.NewMemoryStore()
	seedAccount(t, store, "user-1", "new_user", "new@example.com", "password123")
	handler := AuthHandler{Users: store}

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/auth/onboarding",
		strings.NewReader(`{"bio":"hi","nativeLanguage":"English"}`)), "user-1")
	rec := httptest.NewRecorder()
	handler.Onboard(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "learningLanguage") {
		t.Fatalf("expected missing learningLanguage, got %d %s", rec.Code, rec.Body.String())
	}

	req = withUser(httptest.NewRequest(http.MethodPost, "/api/v1/auth/onboarding", jsonBody(t, onboardingRequest{
		FullName:         "New Name",
		Bio:              "Language nerd",
		NativeLanguage:   "English",
		LearningLanguage: "Spanish",
		Location:         "Lisbon",
		Interests:        []string{"music", " ", "hiking"},
	})), "user-1")
	rec = httptest.NewRecorder()
	handler.Onboard(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.User.IsOnboarded || resp.User.FullName != "New Name" || resp.User.LearningLanguage != "spanish" {
		t.Fatalf("unexpected onboarded user %+v", resp.User)
	}
	if len(resp.User.Interests) != 2 {
		t.Fatalf("expected blank interests to be dropped, got %v", resp.User.Interests)
	}

	req = withUser(httptest.NewRequest(http.MethodPost, "/api/v1/auth/onboarding", jsonBody(t, onboardingRequest{
		NativeLanguage: "english", LearningLanguage: "french",
	})), "ghost")
	rec = httptest.NewRecorder()
	handler.Onboard(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user got %d", rec.Code)
	}
}
