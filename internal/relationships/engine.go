package relationships

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lingoswap/backend/internal/db"
	"github.com/lingoswap/backend/internal/logging"
	"github.com/lingoswap/backend/internal/metrics"
	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/repositories"
)

// UserStore is the slice of the identity store the engine needs.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListFriends(ctx context.Context, userID string) ([]models.PublicUser, error)
	FindCandidates(ctx context.Context, exclude []string, limit int) ([]models.PublicUser, error)
	ListOneSidedFriendships(ctx context.Context) ([]models.FriendEdge, error)
}

// RequestStore is the pending friend request store.
type RequestStore interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	FindRequest(ctx context.Context, id string) (models.FriendRequest, error)
	FindRequestBetween(ctx context.Context, senderID, recipientID string) (models.FriendRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]models.IncomingRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]models.OutgoingRequest, error)
	DeleteRequest(ctx context.Context, id string) error
}

// Outcome describes what SendRequest did.
type Outcome string

const (
	// OutcomeCreated means a new pending request was stored.
	OutcomeCreated Outcome = "created"
	// OutcomeMatched means a pending request in the opposite direction existed and was accepted
	// instead, so the two members are now friends.
	OutcomeMatched Outcome = "matched"
)

// SendResult is returned by SendRequest. Request is the new request, or the reverse request
// that was accepted when Outcome is OutcomeMatched.
type SendResult struct {
	Outcome Outcome
	Request models.FriendRequest
}

const (
	defaultRecommendLimit = 10
	maxRecommendLimit     = 50
	defaultStepAttempts   = 3
	defaultStepBackoff    = 50 * time.Millisecond
	maxStepBackoff        = time.Second
)

// Engine owns the friend graph: requests, acceptance, listings and recommendations.
type Engine struct {
	users    UserStore
	requests RequestStore
	tx       repositories.Transactor

	now          func() time.Time
	newID        func() string
	stepAttempts int
	stepBackoff  time.Duration
	defaultLimit int
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how request ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithStepRetry sets how often each friend-set write is attempted outside a database transaction.
func WithStepRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.stepAttempts = attempts
		}
		if backoff >= 0 {
			e.stepBackoff = backoff
		}
	}
}

// WithDefaultRecommendLimit sets the page size used when Recommend is called without one.
func WithDefaultRecommendLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 && limit <= maxRecommendLimit {
			e.defaultLimit = limit
		}
	}
}

// NewEngine wires an engine over the given stores.
func NewEngine(users UserStore, requests RequestStore, tx repositories.Transactor, opts ...Option) *Engine {
	e := &Engine{
		users:        users,
		requests:     requests,
		tx:           tx,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		stepAttempts: defaultStepAttempts,
		stepBackoff:  defaultStepBackoff,
		defaultLimit: defaultRecommendLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendRequest records a pending request from sender to recipient. When the recipient already
// has a pending request to the sender, that request is accepted instead.
func (e *Engine) SendRequest(ctx context.Context, senderID, recipientID string) (result SendResult, err error) {
	ctx, done := e.begin(ctx, "send_request", slog.String("sender_id", senderID), slog.String("recipient_id", recipientID))
	defer func() { done(err) }()

	if senderID == "" || recipientID == "" {
		return SendResult{}, newError(KindValidation, "sender and recipient ids are required")
	}
	if senderID == recipientID {
		return SendResult{}, newError(KindSelfRequest, "you can't send a friend request to yourself")
	}

	txErr := e.tx.InTx(ctx, func(ctx context.Context) error {
		result = SendResult{}

		sender, err := e.lookupUser(ctx, senderID, "sender")
		if err != nil {
			return err
		}
		if _, err := e.lookupUser(ctx, recipientID, "recipient"); err != nil {
			return err
		}

		switch _, findErr := e.requests.FindRequestBetween(ctx, senderID, recipientID); {
		case findErr == nil:
			return newError(KindDuplicateRequest, "a friend request to this user already exists")
		case !errors.Is(findErr, repositories.ErrNotFound):
			return e.storeFailure(ctx, "find friend request", findErr)
		}

		if sender.HasFriend(recipientID) {
			return newError(KindAlreadyFriends, "you are already friends with this user")
		}

		reverse, findErr := e.requests.FindRequestBetween(ctx, recipientID, senderID)
		switch {
		case findErr == nil:
			if err := e.applyAccept(ctx, reverse); err != nil {
				return &acceptFailure{request: reverse, err: err}
			}
			result = SendResult{Outcome: OutcomeMatched, Request: reverse}
			return nil
		case !errors.Is(findErr, repositories.ErrNotFound):
			return e.storeFailure(ctx, "find reverse friend request", findErr)
		}

		request := models.FriendRequest{
			ID:        e.newID(),
			Sender:    senderID,
			Recipient: recipientID,
			Status:    models.FriendRequestPending,
			CreatedAt: e.now(),
		}

		if createErr := e.requests.CreateRequest(ctx, request); createErr != nil {
			switch {
			case errors.Is(createErr, repositories.ErrConflict):
				return newError(KindDuplicateRequest, "a friend request to this user already exists")
			case errors.Is(createErr, repositories.ErrNotFound):
				return newError(KindNotFound, "user not found")
			default:
				return e.storeFailure(ctx, "create friend request", createErr)
			}
		}

		result = SendResult{Outcome: OutcomeCreated, Request: request}
		return nil
	})

	var failed *acceptFailure
	switch {
	case txErr == nil:
		if result.Outcome == OutcomeMatched {
			logging.FromContext(ctx).Info("crossed friend requests matched", "request_id", result.Request.ID)
		}
		return result, nil
	case errors.As(txErr, &failed):
		return SendResult{}, e.classifyFailedAccept(ctx, failed.request, failed.err)
	}

	var typed *Error
	if errors.As(txErr, &typed) {
		return SendResult{}, typed
	}
	return SendResult{}, e.storeFailure(ctx, "send friend request", txErr)
}

// acceptFailure carries a failed accept out of the transaction that attempted it, so that the
// leftover state can be inspected once the transaction is gone.
type acceptFailure struct {
	request models.FriendRequest
	err     error
}

func (f *acceptFailure) Error() string { return "accept friend request: " + f.err.Error() }

func (f *acceptFailure) Unwrap() error { return f.err }

// AcceptRequest turns a pending request into a friendship. Only the recipient may accept.
func (e *Engine) AcceptRequest(ctx context.Context, requestID, actingUserID string) (request models.FriendRequest, err error) {
	ctx, done := e.begin(ctx, "accept_request", slog.String("request_id", requestID), slog.String("acting_user_id", actingUserID))
	defer func() { done(err) }()

	if requestID == "" || actingUserID == "" {
		return models.FriendRequest{}, newError(KindValidation, "request id and user id are required")
	}

	request, findErr := e.requests.FindRequest(ctx, requestID)
	if findErr != nil {
		if errors.Is(findErr, repositories.ErrNotFound) {
			return models.FriendRequest{}, newError(KindNotFound, "friend request not found")
		}
		return models.FriendRequest{}, e.storeFailure(ctx, "find friend request", findErr)
	}

	if request.Recipient != actingUserID {
		return models.FriendRequest{}, newError(KindForbidden, "you are not authorized to accept this request")
	}

	if err = e.completeRequest(ctx, request); err != nil {
		return models.FriendRequest{}, err
	}
	return request, nil
}

// completeRequest accepts request in its own transaction and classifies any failure.
func (e *Engine) completeRequest(ctx context.Context, request models.FriendRequest) error {
	txErr := e.tx.InTx(ctx, func(ctx context.Context) error {
		return e.applyAccept(ctx, request)
	})
	if txErr == nil {
		return nil
	}
	return e.classifyFailedAccept(ctx, request, txErr)
}

// applyAccept adds both friendship directions, confirms them, then deletes the request and any
// crossed request in the opposite direction. It must run inside a transaction.
func (e *Engine) applyAccept(ctx context.Context, request models.FriendRequest) error {
	if err := e.retryStep(ctx, "add friend", func(ctx context.Context) error {
		return e.users.AddFriend(ctx, request.Sender, request.Recipient)
	}); err != nil {
		return err
	}
	if err := e.retryStep(ctx, "add friend", func(ctx context.Context) error {
		return e.users.AddFriend(ctx, request.Recipient, request.Sender)
	}); err != nil {
		return err
	}

	forward, backward, err := e.friendshipState(ctx, request.Sender, request.Recipient)
	if err != nil {
		return err
	}
	if !forward || !backward {
		return fmt.Errorf("friendship %s/%s not symmetric after write", request.Sender, request.Recipient)
	}

	if err := e.requests.DeleteRequest(ctx, request.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("delete accepted request: %w", err)
	}

	crossed, err := e.requests.FindRequestBetween(ctx, request.Recipient, request.Sender)
	switch {
	case err == nil:
		if err := e.requests.DeleteRequest(ctx, crossed.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("delete crossed request: %w", err)
		}
	case !errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("find crossed request: %w", err)
	}
	return nil
}

// classifyFailedAccept inspects what a failed accept left behind. A half-written friendship is
// reported as inconsistent so that it can be reconciled.
func (e *Engine) classifyFailedAccept(ctx context.Context, request models.FriendRequest, cause error) error {
	logger := logging.FromContext(ctx)

	forward, backward, err := e.friendshipState(ctx, request.Sender, request.Recipient)
	if err != nil {
		logger.Error("accept failed and friendship state is unknown", "error", cause, "lookupError", err)
		return storeError("accept friend request", cause)
	}

	if forward != backward {
		logger.Error("friendship left one-sided", "sender_id", request.Sender, "recipient_id", request.Recipient, "error", cause)
		return &Error{
			Kind:    KindInconsistentState,
			Message: fmt.Sprintf("friendship between %s and %s is one-sided", request.Sender, request.Recipient),
			Err:     cause,
		}
	}

	logger.Error("accept friend request failed", "error", cause)
	return storeError("accept friend request", cause)
}

func (e *Engine) friendshipState(ctx context.Context, a, b string) (aHasB, bHasA bool, err error) {
	userA, err := e.users.FindByID(ctx, a)
	if err != nil {
		return false, false, err
	}
	userB, err := e.users.FindByID(ctx, b)
	if err != nil {
		return false, false, err
	}
	return userA.HasFriend(b), userB.HasFriend(a), nil
}

// retryStep retries an idempotent write. Inside a database transaction a failed statement
// aborts the transaction, so the step runs once and the transactor decides about retries.
func (e *Engine) retryStep(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if _, ok := db.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt < e.stepAttempts; attempt++ {
		if sleepErr := db.Sleep(ctx, db.Backoff(attempt, e.stepBackoff, maxStepBackoff)); sleepErr != nil {
			return sleepErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		logging.FromContext(ctx).Warn("relationship write failed", "step", name, "attempt", attempt+1, "maxAttempts", e.stepAttempts, "error", err)
	}
	return err
}

// ListIncoming returns pending requests addressed to userID.
func (e *Engine) ListIncoming(ctx context.Context, userID string) (requests []models.IncomingRequest, err error) {
	ctx, done := e.begin(ctx, "list_incoming", slog.String("user_id", userID))
	defer func() { done(err) }()

	if userID == "" {
		return nil, newError(KindValidation, "user id is required")
	}

	requests, err = e.requests.ListIncoming(ctx, userID)
	if err != nil {
		return nil, e.storeFailure(ctx, "list incoming requests", err)
	}
	if requests == nil {
		requests = []models.IncomingRequest{}
	}
	return requests, nil
}

// ListOutgoing returns pending requests sent by userID.
func (e *Engine) ListOutgoing(ctx context.Context, userID string) (requests []models.OutgoingRequest, err error) {
	ctx, done := e.begin(ctx, "list_outgoing", slog.String("user_id", userID))
	defer func() { done(err) }()

	if userID == "" {
		return nil, newError(KindValidation, "user id is required")
	}

	requests, err = e.requests.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, e.storeFailure(ctx, "list outgoing requests", err)
	}
	if requests == nil {
		requests = []models.OutgoingRequest{}
	}
	return requests, nil
}

// ListFriends returns the confirmed friends of userID.
func (e *Engine) ListFriends(ctx context.Context, userID string) (friends []models.PublicUser, err error) {
	ctx, done := e.begin(ctx, "list_friends", slog.String("user_id", userID))
	defer func() { done(err) }()

	if userID == "" {
		return nil, newError(KindValidation, "user id is required")
	}
	if _, err = e.lookupUser(ctx, userID, "user"); err != nil {
		return nil, err
	}

	friends, err = e.users.ListFriends(ctx, userID)
	if err != nil {
		return nil, e.storeFailure(ctx, "list friends", err)
	}
	if friends == nil {
		friends = []models.PublicUser{}
	}
	return friends, nil
}

func (e *Engine) lookupUser(ctx context.Context, id, role string) (models.User, error) {
	user, err := e.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, newError(KindNotFound, "%s not found", role)
		}
		return models.User{}, e.storeFailure(ctx, "find "+role, err)
	}
	return user, nil
}

func (e *Engine) storeFailure(ctx context.Context, op string, err error) *Error {
	logging.FromContext(ctx).Error("relationship store failure", "operation", op, "error", err)
	return storeError(op, err)
}

// begin opens a span and returns the func that closes it and records the outcome.
func (e *Engine) begin(ctx context.Context, op string, attrs ...slog.Attr) (context.Context, func(error)) {
	ctx, span := logging.StartSpan(ctx, "relationships."+op, attrs...)
	start := time.Now()
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		metrics.ObserveRelationship(op, outcome, time.Since(start))
		span.End(err)
	}
}
