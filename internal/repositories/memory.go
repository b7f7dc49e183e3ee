package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lingoswap/backend/internal/models"
)

// MemoryStore keeps users, friend edges and requests in process memory. It backs local
// development when no database is configured, and tests.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	users    map[string]models.User
	order    []string
	edges    map[models.FriendEdge]time.Time
	requests map[string]models.FriendRequest
	seq      int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		edges:    make(map[models.FriendEdge]time.Time),
		requests: make(map[string]models.FriendRequest),
	}
}

type memoryTxKey struct{}

// InTx serializes fn against every other transaction on the store. A call nested in a
// transaction of the same store joins it. Writes are applied as they happen, so a failed fn
// leaves its earlier writes in place.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(memoryTxKey{}).(*MemoryStore); owner == s {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, memoryTxKey{}, s))
}

// Create persists a new user record.
func (s *MemoryStore) Create(_ context.Context, user models.User) error {
	user.Username = models.NormalizeIdentity(user.Username)
	user.Email = models.NormalizeIdentity(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return ErrConflict
		}
	}

	user.Interests = cloneStrings(user.Interests)
	user.Friends = nil
	s.users[user.ID] = user
	s.order = append(s.order, user.ID)
	return nil
}

// FindByID fetches a user together with their friend set.
func (s *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.hydrateLocked(user), nil
}

// FindByLogin matches either the email or the username.
func (s *MemoryStore) FindByLogin(ctx context.Context, login string) (models.User, error) {
	login = models.NormalizeIdentity(login)
	if login == "" {
		return models.User{}, ErrNotFound
	}
	return s.findWhere(func(u models.User) bool { return u.Email == login || u.Username == login })
}

// FindByEmail fetches a user by their email address.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	email = models.NormalizeIdentity(email)
	return s.findWhere(func(u models.User) bool { return u.Email == email })
}

// FindByUsername fetches a user by their handle.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	username = models.NormalizeIdentity(username)
	return s.findWhere(func(u models.User) bool { return u.Username == username })
}

func (s *MemoryStore) findWhere(match func(models.User) bool) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if user := s.users[id]; match(user) {
			return s.hydrateLocked(user), nil
		}
	}
	return models.User{}, ErrNotFound
}

// UpdateProfile applies onboarding details and marks the user as onboarded.
func (s *MemoryStore) UpdateProfile(_ context.Context, id string, profile models.Profile, updatedAt time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}

	if profile.FullName != "" {
		user.FullName = profile.FullName
	}
	if profile.ProfilePic != "" {
		user.ProfilePic = profile.ProfilePic
	}
	user.Bio = profile.Bio
	user.NativeLanguage = profile.NativeLanguage
	user.LearningLanguage = profile.LearningLanguage
	user.Location = profile.Location
	user.Interests = cloneStrings(profile.Interests)
	user.IsOnboarded = true
	user.UpdatedAt = updatedAt
	s.users[id] = user

	return s.hydrateLocked(user), nil
}

// SetProfilePic records the location of a freshly uploaded avatar.
func (s *MemoryStore) SetProfilePic(_ context.Context, id, url string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.ProfilePic = url
	user.UpdatedAt = updatedAt
	s.users[id] = user
	return nil
}

// MarkOnboarded flags every account that has not finished onboarding and returns how many changed.
func (s *MemoryStore) MarkOnboarded(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for id, user := range s.users {
		if user.IsOnboarded {
			continue
		}
		user.IsOnboarded = true
		user.UpdatedAt = time.Now().UTC()
		s.users[id] = user
		changed++
	}
	return changed, nil
}

// AddFriend inserts one direction of a friendship. Re-adding an existing edge is a no-op.
func (s *MemoryStore) AddFriend(_ context.Context, userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == friendID {
		return ErrConflict
	}
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.users[friendID]; !ok {
		return ErrNotFound
	}

	edge := models.FriendEdge{UserID: userID, FriendID: friendID}
	if _, ok := s.edges[edge]; !ok {
		s.edges[edge] = s.tickLocked()
	}
	return nil
}

// RemoveFriend deletes one direction of a friendship. Removing a missing edge is a no-op.
func (s *MemoryStore) RemoveFriend(_ context.Context, userID, friendID string) error {
	s.mu.Lock()
	delete(s.edges, models.FriendEdge{UserID: userID, FriendID: friendID})
	s.mu.Unlock()
	return nil
}

// ListFriends resolves the friend set of a user to public profiles.
func (s *MemoryStore) ListFriends(_ context.Context, userID string) ([]models.PublicUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.PublicUser{}
	for _, id := range s.friendIDsLocked(userID) {
		if friend, ok := s.users[id]; ok {
			out = append(out, friend.Public())
		}
	}
	return out, nil
}

// FindCandidates returns onboarded users that are not in exclude, oldest accounts first.
func (s *MemoryStore) FindCandidates(_ context.Context, exclude []string, limit int) ([]models.PublicUser, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.PublicUser{}
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, excluded := skip[id]; excluded {
			continue
		}
		if user := s.users[id]; user.IsOnboarded {
			out = append(out, user.Public())
		}
	}
	return out, nil
}

// ListOneSidedFriendships finds edges whose reverse direction is missing.
func (s *MemoryStore) ListOneSidedFriendships(_ context.Context) ([]models.FriendEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.FriendEdge{}
	for edge := range s.edges {
		if _, ok := s.edges[models.FriendEdge{UserID: edge.FriendID, FriendID: edge.UserID}]; !ok {
			out = append(out, edge)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.edges[out[i]].Before(s.edges[out[j]])
	})
	return out, nil
}

// CreateRequest persists a new friend request.
func (s *MemoryStore) CreateRequest(_ context.Context, request models.FriendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request.Sender == request.Recipient {
		return ErrConflict
	}
	if _, ok := s.users[request.Sender]; !ok {
		return ErrNotFound
	}
	if _, ok := s.users[request.Recipient]; !ok {
		return ErrNotFound
	}
	if _, ok := s.requests[request.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.requests {
		if existing.Sender == request.Sender && existing.Recipient == request.Recipient {
			return ErrConflict
		}
	}

	if request.Status == "" {
		request.Status = models.FriendRequestPending
	}
	s.requests[request.ID] = request
	return nil
}

// FindRequest loads a request by id.
func (s *MemoryStore) FindRequest(_ context.Context, id string) (models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return models.FriendRequest{}, ErrNotFound
	}
	return req, nil
}

// FindRequestBetween loads the request sent from senderID to recipientID.
func (s *MemoryStore) FindRequestBetween(_ context.Context, senderID, recipientID string) (models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.requests {
		if req.Sender == senderID && req.Recipient == recipientID {
			return req, nil
		}
	}
	return models.FriendRequest{}, ErrNotFound
}

// ListIncoming returns requests addressed to userID with the sender resolved, newest first.
func (s *MemoryStore) ListIncoming(_ context.Context, userID string) ([]models.IncomingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.IncomingRequest{}
	for _, req := range s.sortedRequestsLocked() {
		if req.Recipient != userID {
			continue
		}
		if sender, ok := s.users[req.Sender]; ok {
			out = append(out, models.IncomingRequest{Request: req, Sender: sender.Public()})
		}
	}
	return out, nil
}

// ListOutgoing returns requests sent by userID with the recipient resolved, newest first.
func (s *MemoryStore) ListOutgoing(_ context.Context, userID string) ([]models.OutgoingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.OutgoingRequest{}
	for _, req := range s.sortedRequestsLocked() {
		if req.Sender != userID {
			continue
		}
		if recipient, ok := s.users[req.Recipient]; ok {
			out = append(out, models.OutgoingRequest{Request: req, Recipient: recipient.Public()})
		}
	}
	return out, nil
}

// DeleteRequest removes a request once it has been accepted.
func (s *MemoryStore) DeleteRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *MemoryStore) hydrateLocked(user models.User) models.User {
	user.Interests = cloneStrings(user.Interests)
	user.Friends = s.friendIDsLocked(user.ID)
	return user
}

func (s *MemoryStore) friendIDsLocked(userID string) []string {
	type added struct {
		id string
		at time.Time
	}
	var found []added
	for edge, at := range s.edges {
		if edge.UserID == userID {
			found = append(found, added{id: edge.FriendID, at: at})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	ids := make([]string, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.id)
	}
	return ids
}

func (s *MemoryStore) sortedRequestsLocked() []models.FriendRequest {
	out := make([]models.FriendRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// tickLocked yields strictly increasing timestamps so edge order is stable within a process.
func (s *MemoryStore) tickLocked() time.Time {
	s.seq++
	return time.Unix(0, s.seq)
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

var (
	_ UserRepository          = (*MemoryStore)(nil)
	_ FriendRequestRepository = (*MemoryStore)(nil)
	_ Transactor              = (*MemoryStore)(nil)
)
