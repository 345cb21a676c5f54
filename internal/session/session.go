// Package session wraps the store's session rows with the idle-timeout
// policy: a token is only as good as its last activity.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// ErrExpired is returned by Validate for an unknown, inactive, or
// idle-timed-out token. Callers map it to the wire SESSION_EXPIRED code.
var ErrExpired = errors.New("session: expired")

const tokenBytes = 16 // hex-encoded to the spec's 32-hex-char token

// IdleTimeout is how long a session may go without activity before
// Validate treats it as expired.
const IdleTimeout = time.Hour

// Registry validates and mints session tokens against the store.
type Registry struct {
	store *store.Store
}

// New returns a Registry backed by s.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// NewToken generates a cryptographically random 32 hex character token.
// The reference implementation seeded its PRNG from time(NULL); this
// draws from the OS entropy source instead.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create mints a new token for userID and persists it as an active
// session.
func (r *Registry) Create(userID int64) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := r.store.CreateSession(token, userID); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Validate returns the session for token if it exists, is active, and
// has seen activity within IdleTimeout. On success it touches the
// session's last-activity clock. Any other outcome is ErrExpired.
func (r *Registry) Validate(token string) (*store.Session, error) {
	sess, err := r.store.GetSession(token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if !sess.IsActive {
		return nil, ErrExpired
	}
	if time.Since(sess.LastActivity) > IdleTimeout {
		return nil, ErrExpired
	}

	if err := r.store.TouchSession(token); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastActivity = time.Now()
	return sess, nil
}

// Destroy deletes a session (logout).
func (r *Registry) Destroy(token string) error {
	if err := r.store.DeleteSession(token); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
