package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/relationships"
	"github.com/lingoswap/backend/internal/repositories"
)

func newFriendFixture(t *testing.T, users ...string) (FriendHandler, *relationships.Engine, *repositories.MemoryStore) {
	t.Helper()
	store := repositories.NewMemoryStore()
	for _, id := range users {
		seedAccount(t, store, id, id, id+"@example.com", "password123")
	}
	engine := relationships.NewEngine(store, store, store)
	return FriendHandler{Relationships: engine}, engine, store
}

func sendAs(handler FriendHandler, sender, recipient string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/friend-requests/"+recipient, nil)
	req.SetPathValue("id", recipient)
	rec := httptest.NewRecorder()
	handler.Send(rec, withUser(req, sender))
	return rec
}

func acceptAs(handler FriendHandler, actor, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/users/friend-requests/%s/accept", requestID), nil)
	req.SetPathValue("id", requestID)
	rec := httptest.NewRecorder()
	handler.Accept(rec, withUser(req, actor))
	return rec
}

func TestFriendHandlerSend(t *testing.T) {
	handler, _, _ := newFriendFixture(t, "alice", "bob")

	rec := sendAs(handler, "alice", "bob")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp sendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != string(relationships.OutcomeCreated) || resp.Request.Sender != "alice" || resp.Request.Recipient != "bob" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Request.Status != models.FriendRequestPending {
		t.Fatalf("expected pending status got %q", resp.Request.Status)
	}
}

func TestFriendHandlerSendFailures(t *testing.T) {
	cases := []struct {
		name       string
		prepare    func(t *testing.T, handler FriendHandler)
		sender     string
		recipient  string
		wantStatus int
		wantKind   relationships.Kind
	}{
		{"self", nil, "alice", "alice", http.StatusBadRequest, relationships.KindSelfRequest},
		{"unknownRecipient", nil, "alice", "ghost", http.StatusNotFound, relationships.KindNotFound},
		{"duplicate", func(t *testing.T, h FriendHandler) {
			if rec := sendAs(h, "alice", "bob"); rec.Code != http.StatusCreated {
				t.Fatalf("seed request: %d", rec.Code)
			}
		}, "alice", "bob", http.StatusConflict, relationships.KindDuplicateRequest},
		{"alreadyFriends", func(t *testing.T, h FriendHandler) {
			sendAs(h, "alice", "bob")
			if rec := sendAs(h, "bob", "alice"); rec.Code != http.StatusOK {
				t.Fatalf("expected crossed requests to match, got %d", rec.Code)
			}
		}, "alice", "bob", http.StatusBadRequest, relationships.KindAlreadyFriends},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, _, _ := newFriendFixture(t, "alice", "bob")
			if tc.prepare != nil {
				tc.prepare(t, handler)
			}

			rec := sendAs(handler, tc.sender, tc.recipient)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error != string(tc.wantKind) {
				t.Fatalf("expected kind %q got %q", tc.wantKind, resp.Error)
			}
		})
	}
}

func TestFriendHandlerSendReverseMatches(t *testing.T) {
	handler, _, store := newFriendFixture(t, "alice", "bob")

	sendAs(handler, "alice", "bob")
	rec := sendAs(handler, "bob", "alice")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var resp sendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != string(relationships.OutcomeMatched) {
		t.Fatalf("expected matched outcome got %q", resp.Outcome)
	}

	alice, err := store.FindByID(context.Background(), "alice")
	if err != nil || !alice.HasFriend("bob") {
		t.Fatalf("expected alice and bob to be friends: %+v %v", alice.Friends, err)
	}
}

func TestFriendHandlerAccept(t *testing.T) {
	handler, _, store := newFriendFixture(t, "alice", "bob")

	var sent sendResponse
	if err := json.NewDecoder(sendAs(handler, "alice", "bob").Body).Decode(&sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}

	if rec := acceptAs(handler, "alice", sent.Request.ID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected sender to be forbidden, got %d", rec.Code)
	}

	rec := acceptAs(handler, "bob", sent.Request.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		user, err := store.FindByID(context.Background(), pair[0])
		if err != nil || !user.HasFriend(pair[1]) {
			t.Fatalf("expected %s to list %s as a friend", pair[0], pair[1])
		}
	}

	if rec := acceptAs(handler, "bob", sent.Request.ID); rec.Code != http.StatusNotFound {
		t.Fatalf("expected accepted request to be gone, got %d", rec.Code)
	}
}

func TestFriendHandlerListings(t *testing.T) {
	handler, _, _ := newFriendFixture(t, "alice", "bob", "carol")
	sendAs(handler, "alice", "bob")
	sendAs(handler, "carol", "bob")

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/friend-requests", nil), "bob")
	rec := httptest.NewRecorder()
	handler.Incoming(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var incoming incomingResponse
	if err := json.NewDecoder(rec.Body).Decode(&incoming); err != nil {
		t.Fatalf("decode incoming: %v", err)
	}
	if incoming.AcceptedReqs == nil || len(incoming.AcceptedReqs) != 0 {
		t.Fatalf("expected an empty acceptedReqs array, got %+v", incoming.AcceptedReqs)
	}
	if len(incoming.IncomingReqs) != 2 {
		t.Fatalf("expected two incoming requests got %+v", incoming.IncomingReqs)
	}
	senders := map[string]bool{}
	for _, view := range incoming.IncomingReqs {
		senders[view.Sender.ID] = true
	}
	if !senders["alice"] || !senders["carol"] {
		t.Fatalf("expected senders alice and carol, got %v", senders)
	}

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/outgoing-friend-requests", nil), "alice")
	rec = httptest.NewRecorder()
	handler.Outgoing(rec, req)

	var outgoing []outgoingView
	if err := json.NewDecoder(rec.Body).Decode(&outgoing); err != nil {
		t.Fatalf("decode outgoing as a bare array: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].Recipient.ID != "bob" {
		t.Fatalf("unexpected outgoing requests %+v", outgoing)
	}

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/friend-requests", nil), "carol")
	rec = httptest.NewRecorder()
	handler.Incoming(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status for empty listing: %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"incomingReqs":[],"acceptedReqs":[]}` {
		t.Fatalf("unexpected empty incoming listing %s", body)
	}

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/outgoing-friend-requests", nil), "bob")
	rec = httptest.NewRecorder()
	handler.Outgoing(rec, req)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("unexpected empty outgoing listing %s", body)
	}
}

type failingRelationships struct {
	RelationshipService
	err error
}

func (f failingRelationships) ListIncoming(context.Context, string) ([]models.IncomingRequest, error) {
	return nil, f.err
}

func TestFriendHandlerStoreFailures(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"storeUnavailable", &relationships.Error{Kind: relationships.KindStoreUnavailable, Message: "list incoming requests failed"}, http.StatusInternalServerError},
		{"inconsistent", &relationships.Error{Kind: relationships.KindInconsistentState, Message: "half applied"}, http.StatusConflict},
		{"foreign", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := FriendHandler{Relationships: failingRelationships{err: tc.err}}
			rec := httptest.NewRecorder()
			handler.Incoming(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/friend-requests", nil), "bob"))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	FriendHandler{}.Incoming(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/friend-requests", nil), "bob"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected missing service to fail, got %d", rec.Code)
	}
}
