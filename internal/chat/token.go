package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stream "github.com/GetStream/stream-chat-go/v7"
)

// ErrMissingCredentials is returned when the provider key or secret is not configured.
var ErrMissingCredentials = errors.New("chat: provider api key and secret are required")

// TokenMinter issues bearer tokens for the external chat and video provider.
type TokenMinter interface {
	MintToken(ctx context.Context, userID string) (string, error)
}

// StreamTokenMinter issues user tokens through the Stream server client. The client is built
// once at startup and only signs locally, so minting never calls the provider.
type StreamTokenMinter struct {
	client *stream.Client
	apiKey string
	ttl    time.Duration
	now    func() time.Time
}

// NewStreamTokenMinter builds a minter once at startup. ttl <= 0 issues tokens without expiry.
func NewStreamTokenMinter(apiKey, apiSecret string, ttl time.Duration) (*StreamTokenMinter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, ErrMissingCredentials
	}

	client, err := stream.NewClient(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("chat: create stream client: %w", err)
	}

	return &StreamTokenMinter{
		client: client,
		apiKey: apiKey,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// APIKey is the public key clients pair with minted tokens.
func (m *StreamTokenMinter) APIKey() string {
	return m.apiKey
}

// MintToken signs a token for userID.
func (m *StreamTokenMinter) MintToken(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("chat: user id must be provided")
	}

	var (
		token string
		err   error
	)
	if m.ttl > 0 {
		now := m.now()
		token, err = m.client.CreateToken(userID, now.Add(m.ttl), now)
	} else {
		token, err = m.client.CreateToken(userID, time.Time{})
	}
	if err != nil {
		return "", fmt.Errorf("chat: create token: %w", err)
	}
	return token, nil
}

var _ TokenMinter = (*StreamTokenMinter)(nil)
