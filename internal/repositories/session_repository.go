package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"

	"github.com/lingoswap/backend/internal/auth"
	"github.com/lingoswap/backend/internal/db"
)

// PostgresSessionStore persists refresh tokens to PostgreSQL.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save stores or updates a session record.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	q, release, err := db.QuerierFromContext(ctx, s.pool)
	if err != nil {
		return err
	}
	defer release()

	_, err = q.Exec(ctx, `
        INSERT INTO sessions (refresh_token, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (refresh_token)
        DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
    `, session.RefreshToken, session.UserID, session.ExpiresAt.UTC())
	if err != nil {
		if mapped := classifyWriteError(err); errors.Is(mapped, ErrNotFound) {
			return fmt.Errorf("upsert session for unknown user %s: %w", session.UserID, mapped)
		}
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// Find loads a session by its refresh token.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	q, release, err := db.QuerierFromContext(ctx, s.pool)
	if err != nil {
		return auth.Session{}, err
	}
	defer release()

	row := q.QueryRow(ctx, `
        SELECT refresh_token, user_id, expires_at
        FROM sessions
        WHERE refresh_token = $1
    `, refreshToken)

	var session auth.Session
	if err := row.Scan(&session.RefreshToken, &session.UserID, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete removes a session by its refresh token.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	q, release, err := db.QuerierFromContext(ctx, s.pool)
	if err != nil {
		return err
	}
	defer release()

	tag, err := q.Exec(ctx, `
        DELETE FROM sessions
        WHERE refresh_token = $1
    `, refreshToken)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}

	return nil
}

// RedisSessionStore keeps refresh tokens in Redis, letting key expiry purge stale sessions.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore constructs a session store on top of an existing Redis client.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "lingoswap:session:", now: time.Now}
}

type redisSession struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Save stores or updates a session record.
func (s *RedisSessionStore) Save(ctx context.Context, session auth.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("save session: already expired")
	}

	payload, err := json.Marshal(redisSession{UserID: session.UserID, ExpiresAt: session.ExpiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+session.RefreshToken, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Find loads a session by its refresh token.
func (s *RedisSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	raw, err := s.client.Get(ctx, s.prefix+refreshToken).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return auth.Session{}, fmt.Errorf("decode session: %w", err)
	}

	return auth.Session{RefreshToken: refreshToken, UserID: stored.UserID, ExpiresAt: stored.ExpiresAt.UTC()}, nil
}

// Delete removes a session by its refresh token.
func (s *RedisSessionStore) Delete(ctx context.Context, refreshToken string) error {
	removed, err := s.client.Del(ctx, s.prefix+refreshToken).Result()
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	if removed == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

var (
	_ auth.SessionStore = (*PostgresSessionStore)(nil)
	_ auth.SessionStore = (*RedisSessionStore)(nil)
)
