// Package auth implements registration, login, logout, and session
// validation against the store, grounded on
// original_source/src/server/auth.c.
package auth

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/session"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// ErrInvalidCredentials covers unknown usernames, wrong passwords, and
// out-of-bounds username/password lengths — the reference implementation
// collapses all three into one error code.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrUserExists is returned by Register for a username already taken.
var ErrUserExists = errors.New("auth: user exists")

// ErrBanned is returned by Login for a banned account.
var ErrBanned = errors.New("auth: account banned")

const (
	minUsernameLen = 3
	maxUsernameLen = 31
	minPasswordLen = 6
	maxPasswordLen = 64

	startingBalance = 100.0
)

// Service wires password hashing and session minting to the store.
type Service struct {
	store    *store.Store
	sessions *session.Registry
	hasher   PasswordHasher
	hooks    *hooks.Hooks
}

// New returns a Service using hasher for password digests. Pass
// LegacyHasher{} for the reference digest. h fires the login-streak
// hook on every successful login; a nil h disables it.
func New(s *store.Store, sessions *session.Registry, hasher PasswordHasher, h *hooks.Hooks) *Service {
	return &Service{store: s, sessions: sessions, hasher: hasher, hooks: h}
}

// Register creates a new user with the starting balance and returns its
// id. Usernames are case-sensitive and must be unique.
func (a *Service) Register(username, password string) (int64, error) {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, ErrInvalidCredentials
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return 0, ErrInvalidCredentials
	}

	exists, err := a.store.UserExists(username)
	if err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}
	if exists {
		return 0, ErrUserExists
	}

	digest := a.hasher.Hash(password)
	userID, err := a.store.CreateUser(username, digest, startingBalance)
	if err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}
	return userID, nil
}

// Login verifies credentials and mints a new session token.
func (a *Service) Login(username, password string) (token string, userID int64, err error) {
	user, err := a.store.GetUserByUsername(username)
	if errors.Is(err, store.ErrNotFound) {
		return "", 0, ErrInvalidCredentials
	}
	if err != nil {
		return "", 0, fmt.Errorf("login: %w", err)
	}

	if user.IsBanned {
		return "", 0, ErrBanned
	}
	if !a.hasher.Verify(password, user.PasswordHash) {
		return "", 0, ErrInvalidCredentials
	}

	token, err = a.sessions.Create(user.ID)
	if err != nil {
		return "", 0, fmt.Errorf("login: %w", err)
	}
	if err := a.store.UpdateLastLogin(user.ID); err != nil {
		return "", 0, fmt.Errorf("login: %w", err)
	}
	if a.hooks != nil {
		if err := a.hooks.TouchLoginStreak(user.ID); err != nil {
			return "", 0, fmt.Errorf("login: %w", err)
		}
	}
	return token, user.ID, nil
}

// Logout deletes a session token.
func (a *Service) Logout(token string) error {
	return a.sessions.Destroy(token)
}

// ValidateSession returns the session bound to token, or
// session.ErrExpired if it's unknown, inactive, or idle past the
// timeout.
func (a *Service) ValidateSession(token string) (*store.Session, error) {
	return a.sessions.Validate(token)
}
