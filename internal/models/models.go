package models

import (
	"strings"
	"time"
)

// User represents an account within the LingoSwap platform.
type User struct {
	ID               string
	FullName         string
	Username         string
	Email            string
	Password         string
	Bio              string
	NativeLanguage   string
	LearningLanguage string
	Location         string
	ProfilePic       string
	Interests        []string
	IsOnboarded      bool
	Friends          []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasFriend reports whether id is part of the user's friend set.
func (u User) HasFriend(id string) bool {
	for _, friend := range u.Friends {
		if friend == id {
			return true
		}
	}
	return false
}

// Public strips secret fields so the user can be shown to other members.
func (u User) Public() PublicUser {
	interests := u.Interests
	if interests == nil {
		interests = []string{}
	}
	return PublicUser{
		ID:               u.ID,
		FullName:         u.FullName,
		Username:         u.Username,
		Bio:              u.Bio,
		NativeLanguage:   u.NativeLanguage,
		LearningLanguage: u.LearningLanguage,
		Location:         u.Location,
		ProfilePic:       u.ProfilePic,
		Interests:        interests,
		IsOnboarded:      u.IsOnboarded,
	}
}

// PublicUser is the profile projection returned wherever another member is resolved.
type PublicUser struct {
	ID               string   `json:"id"`
	FullName         string   `json:"fullName"`
	Username         string   `json:"username"`
	Bio              string   `json:"bio"`
	NativeLanguage   string   `json:"nativeLanguage"`
	LearningLanguage string   `json:"learningLanguage"`
	Location         string   `json:"location"`
	ProfilePic       string   `json:"profilePic"`
	Interests        []string `json:"interests"`
	IsOnboarded      bool     `json:"isOnboarded"`
}

// Profile carries the fields a member fills in during onboarding.
type Profile struct {
	FullName         string
	Bio              string
	NativeLanguage   string
	LearningLanguage string
	Location         string
	ProfilePic       string
	Interests        []string
}

// FriendRequestPending is the only status a stored request ever has; acceptance deletes it.
const FriendRequestPending = "pending"

// FriendRequest is a directed, pending invitation between two members.
type FriendRequest struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// IncomingRequest pairs a request with the profile of whoever sent it.
type IncomingRequest struct {
	Request FriendRequest
	Sender  PublicUser
}

// OutgoingRequest pairs a request with the profile of whoever receives it.
type OutgoingRequest struct {
	Request   FriendRequest
	Recipient PublicUser
}

// FriendEdge is one direction of a friendship as stored.
type FriendEdge struct {
	UserID   string
	FriendID string
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// NormalizeIdentity folds usernames and emails so lookups and uniqueness ignore case.
func NormalizeIdentity(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
