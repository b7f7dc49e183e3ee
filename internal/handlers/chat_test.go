package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lingoswap/backend/internal/chat"
)

type failingMinter struct{}

func (failingMinter) MintToken(context.Context, string) (string, error) {
	return "", errors.New("signing failed")
}

func (failingMinter) APIKey() string { return "key" }

func TestChatHandlerToken(t *testing.T) {
	minter, err := chat.NewStreamTokenMinter("stream-key", "stream-secret", time.Hour)
	if err != nil {
		t.Fatalf("new minter: %v", err)
	}
	handler := ChatHandler{Tokens: minter}

	rec := httptest.NewRecorder()
	handler.Token(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/chat/token", nil), "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["token"] == "" || resp["apiKey"] != "stream-key" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestChatHandlerTokenFailures(t *testing.T) {
	cases := []struct {
		name       string
		handler    ChatHandler
		user       string
		wantStatus int
	}{
		{"unauthenticated", ChatHandler{Tokens: failingMinter{}}, "", http.StatusUnauthorized},
		{"notConfigured", ChatHandler{}, "user-1", http.StatusServiceUnavailable},
		{"mintFails", ChatHandler{Tokens: failingMinter{}}, "user-1", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/token", nil)
			if tc.user != "" {
				req = withUser(req, tc.user)
			}
			rec := httptest.NewRecorder()
			tc.handler.Token(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}
