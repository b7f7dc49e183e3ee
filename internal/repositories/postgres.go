package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lingoswap/backend/internal/db"
	"github.com/lingoswap/backend/internal/models"
)

const userColumns = `id, full_name, username, email, password_hash, bio, native_language,
        learning_language, location, profile_pic, interests, is_onboarded, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func publicColumns(alias string) string {
	cols := []string{"id", "full_name", "username", "bio", "native_language", "learning_language",
		"location", "profile_pic", "interests", "is_onboarded"}
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

func publicTargets(u *models.PublicUser) []any {
	return []any{&u.ID, &u.FullName, &u.Username, &u.Bio, &u.NativeLanguage, &u.LearningLanguage,
		&u.Location, &u.ProfilePic, &u.Interests, &u.IsOnboarded}
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.FullName, &user.Username, &user.Email, &user.Password, &user.Bio,
		&user.NativeLanguage, &user.LearningLanguage, &user.Location, &user.ProfilePic, &user.Interests,
		&user.IsOnboarded, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	if user.Interests == nil {
		user.Interests = []string{}
	}
	return user, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	_, err = q.Exec(ctx, `
        INSERT INTO users (id, full_name, username, email, password_hash, bio, native_language,
            learning_language, location, profile_pic, interests, is_onboarded, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `, user.ID, user.FullName, models.NormalizeIdentity(user.Username), models.NormalizeIdentity(user.Email),
		user.Password, user.Bio, user.NativeLanguage, user.LearningLanguage, user.Location, user.ProfilePic,
		nonNil(user.Interests), user.IsOnboarded, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if mapped := classifyWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user together with their friend set.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	if !validID(id) {
		return models.User{}, ErrNotFound
	}
	return r.findOne(ctx, "id = $1", id)
}

// FindByLogin matches either the email or the username.
func (r *PostgresUserRepository) FindByLogin(ctx context.Context, login string) (models.User, error) {
	login = models.NormalizeIdentity(login)
	if login == "" {
		return models.User{}, ErrNotFound
	}
	return r.findOne(ctx, "email = $1 OR username = $1", login)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email = $1", models.NormalizeIdentity(email))
}

// FindByUsername fetches a user by their handle.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username = $1", models.NormalizeIdentity(username))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return models.User{}, err
	}
	defer release()

	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	user.Friends, err = loadFriendIDs(ctx, q, user.ID)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func loadFriendIDs(ctx context.Context, q db.Querier, userID string) ([]string, error) {
	rows, err := q.Query(ctx, `
        SELECT friend_id
        FROM user_friends
        WHERE user_id = $1
        ORDER BY created_at, friend_id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friend ids: %w", err)
	}
	defer rows.Close()

	friends := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		friends = append(friends, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend ids: %w", err)
	}
	return friends, nil
}

// UpdateProfile applies onboarding details and marks the user as onboarded.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, profile models.Profile, updatedAt time.Time) (models.User, error) {
	if !validID(id) {
		return models.User{}, ErrNotFound
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return models.User{}, err
	}
	defer release()

	row := q.QueryRow(ctx, `
        UPDATE users
        SET full_name = COALESCE(NULLIF($2::text, ''), full_name),
            bio = $3,
            native_language = $4,
            learning_language = $5,
            location = $6,
            profile_pic = COALESCE(NULLIF($7::text, ''), profile_pic),
            interests = $8,
            is_onboarded = TRUE,
            updated_at = $9
        WHERE id = $1
        RETURNING `+userColumns,
		id, profile.FullName, profile.Bio, profile.NativeLanguage, profile.LearningLanguage, profile.Location,
		profile.ProfilePic, nonNil(profile.Interests), updatedAt)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}

	user.Friends, err = loadFriendIDs(ctx, q, user.ID)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// SetProfilePic records the location of a freshly uploaded avatar.
func (r *PostgresUserRepository) SetProfilePic(ctx context.Context, id, url string, updatedAt time.Time) error {
	if !validID(id) {
		return ErrNotFound
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	tag, err := q.Exec(ctx, `
        UPDATE users
        SET profile_pic = $2, updated_at = $3
        WHERE id = $1
    `, id, url, updatedAt)
	if err != nil {
		return fmt.Errorf("update profile pic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOnboarded flags every account that has not finished onboarding and returns how many changed.
func (r *PostgresUserRepository) MarkOnboarded(ctx context.Context) (int64, error) {
	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	defer release()

	tag, err := q.Exec(ctx, `
        UPDATE users
        SET is_onboarded = TRUE, updated_at = now()
        WHERE is_onboarded = FALSE
    `)
	if err != nil {
		return 0, fmt.Errorf("mark users onboarded: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AddFriend inserts one direction of a friendship. Re-adding an existing edge is a no-op.
func (r *PostgresUserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	if !validID(userID) || !validID(friendID) {
		return ErrNotFound
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	_, err = q.Exec(ctx, `
        INSERT INTO user_friends (user_id, friend_id)
        VALUES ($1, $2)
        ON CONFLICT (user_id, friend_id) DO NOTHING
    `, userID, friendID)
	if err != nil {
		if mapped := classifyWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert friend edge: %w", err)
	}
	return nil
}

// RemoveFriend deletes one direction of a friendship. Removing a missing edge is a no-op.
func (r *PostgresUserRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if !validID(userID) || !validID(friendID) {
		return nil
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	if _, err := q.Exec(ctx, `
        DELETE FROM user_friends
        WHERE user_id = $1 AND friend_id = $2
    `, userID, friendID); err != nil {
		return fmt.Errorf("delete friend edge: %w", err)
	}
	return nil
}

// ListFriends resolves the friend set of a user to public profiles.
func (r *PostgresUserRepository) ListFriends(ctx context.Context, userID string) ([]models.PublicUser, error) {
	if !validID(userID) {
		return []models.PublicUser{}, nil
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := q.Query(ctx, `
        SELECT `+publicColumns("u")+`
        FROM user_friends f
        JOIN users u ON u.id = f.friend_id
        WHERE f.user_id = $1
        ORDER BY f.created_at, u.id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	return collectPublicUsers(rows)
}

// FindCandidates returns onboarded users that are not in exclude, oldest accounts first.
func (r *PostgresUserRepository) FindCandidates(ctx context.Context, exclude []string, limit int) ([]models.PublicUser, error) {
	ids := make([]uuid.UUID, 0, len(exclude))
	for _, raw := range exclude {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := q.Query(ctx, `
        SELECT `+publicColumns("u")+`
        FROM users u
        WHERE u.is_onboarded = TRUE
          AND NOT (u.id = ANY($1::uuid[]))
        ORDER BY u.created_at, u.id
        LIMIT $2
    `, ids, limit)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	return collectPublicUsers(rows)
}

// ListOneSidedFriendships finds edges whose reverse direction is missing.
func (r *PostgresUserRepository) ListOneSidedFriendships(ctx context.Context) ([]models.FriendEdge, error) {
	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := q.Query(ctx, `
        SELECT f.user_id, f.friend_id
        FROM user_friends f
        LEFT JOIN user_friends r ON r.user_id = f.friend_id AND r.friend_id = f.user_id
        WHERE r.user_id IS NULL
        ORDER BY f.created_at, f.user_id
    `)
	if err != nil {
		return nil, fmt.Errorf("query one-sided friendships: %w", err)
	}
	defer rows.Close()

	edges := []models.FriendEdge{}
	for rows.Next() {
		var edge models.FriendEdge
		if err := rows.Scan(&edge.UserID, &edge.FriendID); err != nil {
			return nil, fmt.Errorf("scan friend edge: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend edges: %w", err)
	}
	return edges, nil
}

func collectPublicUsers(rows pgx.Rows) ([]models.PublicUser, error) {
	defer rows.Close()

	users := []models.PublicUser{}
	for rows.Next() {
		var user models.PublicUser
		if err := rows.Scan(publicTargets(&user)...); err != nil {
			return nil, fmt.Errorf("scan public user: %w", err)
		}
		user.Interests = nonNil(user.Interests)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public users: %w", err)
	}
	return users, nil
}

// PostgresFriendRepository provides PostgreSQL-backed persistence for friend requests.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// CreateRequest persists a new friend request.
func (r *PostgresFriendRepository) CreateRequest(ctx context.Context, request models.FriendRequest) error {
	if !validID(request.Sender) || !validID(request.Recipient) {
		return ErrNotFound
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	status := request.Status
	if status == "" {
		status = models.FriendRequestPending
	}

	_, err = q.Exec(ctx, `
        INSERT INTO friend_requests (id, sender_id, recipient_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, request.ID, request.Sender, request.Recipient, status, request.CreatedAt)
	if err != nil {
		if mapped := classifyWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

// FindRequest loads a request by id.
func (r *PostgresFriendRepository) FindRequest(ctx context.Context, id string) (models.FriendRequest, error) {
	if !validID(id) {
		return models.FriendRequest{}, ErrNotFound
	}
	return r.findOne(ctx, "id = $1", id)
}

// FindRequestBetween loads the request sent from senderID to recipientID.
func (r *PostgresFriendRepository) FindRequestBetween(ctx context.Context, senderID, recipientID string) (models.FriendRequest, error) {
	if !validID(senderID) || !validID(recipientID) {
		return models.FriendRequest{}, ErrNotFound
	}
	return r.findOne(ctx, "sender_id = $1 AND recipient_id = $2", senderID, recipientID)
}

func (r *PostgresFriendRepository) findOne(ctx context.Context, where string, args ...any) (models.FriendRequest, error) {
	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return models.FriendRequest{}, err
	}
	defer release()

	row := q.QueryRow(ctx, `
        SELECT id, sender_id, recipient_id, status, created_at
        FROM friend_requests
        WHERE `+where, args...)

	var req models.FriendRequest
	if err := row.Scan(&req.ID, &req.Sender, &req.Recipient, &req.Status, &req.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request: %w", err)
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return req, nil
}

// ListIncoming returns requests addressed to userID with the sender resolved, newest first.
func (r *PostgresFriendRepository) ListIncoming(ctx context.Context, userID string) ([]models.IncomingRequest, error) {
	out := []models.IncomingRequest{}
	if !validID(userID) {
		return out, nil
	}

	err := r.listResolved(ctx, "fr.sender_id", "fr.recipient_id", userID, func(req models.FriendRequest, user models.PublicUser) {
		out = append(out, models.IncomingRequest{Request: req, Sender: user})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOutgoing returns requests sent by userID with the recipient resolved, newest first.
func (r *PostgresFriendRepository) ListOutgoing(ctx context.Context, userID string) ([]models.OutgoingRequest, error) {
	out := []models.OutgoingRequest{}
	if !validID(userID) {
		return out, nil
	}

	err := r.listResolved(ctx, "fr.recipient_id", "fr.sender_id", userID, func(req models.FriendRequest, user models.PublicUser) {
		out = append(out, models.OutgoingRequest{Request: req, Recipient: user})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresFriendRepository) listResolved(ctx context.Context, joinColumn, filterColumn, userID string, emit func(models.FriendRequest, models.PublicUser)) error {
	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	rows, err := q.Query(ctx, `
        SELECT fr.id, fr.sender_id, fr.recipient_id, fr.status, fr.created_at, `+publicColumns("u")+`
        FROM friend_requests fr
        JOIN users u ON u.id = `+joinColumn+`
        WHERE `+filterColumn+` = $1
        ORDER BY fr.created_at DESC, fr.id
    `, userID)
	if err != nil {
		return fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			req  models.FriendRequest
			user models.PublicUser
		)
		targets := append([]any{&req.ID, &req.Sender, &req.Recipient, &req.Status, &req.CreatedAt}, publicTargets(&user)...)
		if err := rows.Scan(targets...); err != nil {
			return fmt.Errorf("scan friend request: %w", err)
		}
		req.CreatedAt = req.CreatedAt.UTC()
		user.Interests = nonNil(user.Interests)
		emit(req, user)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate friend requests: %w", err)
	}
	return nil
}

// DeleteRequest removes a request once it has been accepted.
func (r *PostgresFriendRepository) DeleteRequest(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}

	q, release, err := db.QuerierFromContext(ctx, r.pool)
	if err != nil {
		return err
	}
	defer release()

	tag, err := q.Exec(ctx, `
        DELETE FROM friend_requests
        WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ FriendRequestRepository = (*PostgresFriendRepository)(nil)
