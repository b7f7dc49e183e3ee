package handlers

import (
	"net/http"
	"time"

	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/relationships"
)

// FriendHandler exposes the friend request lifecycle.
type FriendHandler struct {
	Relationships RelationshipService
}

// Send handles POST /api/v1/users/friend-requests/{id}, where id is the recipient. When the
// recipient had already asked the caller, the two become friends immediately and the response
// is 200 instead of 201.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Relationships == nil {
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "friend service unavailable")
		return
	}

	result, err := h.Relationships.SendRequest(ctx, userID, r.PathValue("id"))
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == relationships.OutcomeMatched {
		status = http.StatusOK
	}
	respondJSON(ctx, w, status, sendResponse{Outcome: string(result.Outcome), Request: result.Request})
}

// Accept handles PUT /api/v1/users/friend-requests/{id}/accept. Only the recipient may accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Relationships == nil {
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "friend service unavailable")
		return
	}

	request, err := h.Relationships.AcceptRequest(ctx, r.PathValue("id"), userID)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, acceptResponse{Message: "friend request accepted", Request: request})
}

// Incoming handles GET /api/v1/users/friend-requests.
func (h FriendHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Relationships == nil {
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "friend service unavailable")
		return
	}

	incoming, err := h.Relationships.ListIncoming(ctx, userID)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}

	views := make([]incomingView, 0, len(incoming))
	for _, item := range incoming {
		views = append(views, incomingView{
			ID:        item.Request.ID,
			Sender:    item.Sender,
			Status:    item.Request.Status,
			CreatedAt: item.Request.CreatedAt,
		})
	}
	// Accepted requests are deleted on acceptance, so acceptedReqs is always empty.
	respondJSON(ctx, w, http.StatusOK, incomingResponse{IncomingReqs: views, AcceptedReqs: []incomingView{}})
}

// Outgoing handles GET /api/v1/users/outgoing-friend-requests.
func (h FriendHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if h.Relationships == nil {
		respondError(ctx, w, http.StatusInternalServerError, errInternal, "friend service unavailable")
		return
	}

	outgoing, err := h.Relationships.ListOutgoing(ctx, userID)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}

	views := make([]outgoingView, 0, len(outgoing))
	for _, item := range outgoing {
		views = append(views, outgoingView{
			ID:        item.Request.ID,
			Recipient: item.Recipient,
			Status:    item.Request.Status,
			CreatedAt: item.Request.CreatedAt,
		})
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

type incomingResponse struct {
	IncomingReqs []incomingView `json:"incomingReqs"`
	AcceptedReqs []incomingView `json:"acceptedReqs"`
}

type sendResponse struct {
	Outcome string               `json:"outcome"`
	Request models.FriendRequest `json:"request"`
}

type acceptResponse struct {
	Message string               `json:"message"`
	Request models.FriendRequest `json:"request"`
}

type incomingView struct {
	ID        string            `json:"id"`
	Sender    models.PublicUser `json:"sender"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

type outgoingView struct {
	ID        string            `json:"id"`
	Recipient models.PublicUser `json:"recipient"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}
