package session

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store, int64) {
	t.Helper()
	dir, err := os.MkdirTemp("", "klingoserver-session-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	userID, err := s.CreateUser("dax", "hash", 100.0)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	return New(s), s, userID
}

func TestNewTokenIsUniqueHex(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected two tokens to differ")
	}
}

func TestCreateAndValidate(t *testing.T) {
	r, _, userID := newTestRegistry(t)

	token, err := r.Create(userID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sess, err := r.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if sess.UserID != userID {
		t.Errorf("expected user id %d, got %d", userID, sess.UserID)
	}
}

func TestValidateUnknownTokenExpired(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Validate("deadbeef"); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestDestroyThenValidateExpired(t *testing.T) {
	r, _, userID := newTestRegistry(t)

	token, err := r.Create(userID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := r.Destroy(token); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := r.Validate(token); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired after Destroy, got %v", err)
	}
}

func TestValidateIdleTimeout(t *testing.T) {
	r, s, userID := newTestRegistry(t)

	token, err := r.Create(userID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Push last_activity beyond IdleTimeout directly in the store, the
	// way a session that's genuinely gone idle would look.
	stale := time.Now().Add(-IdleTimeout - time.Minute).Unix()
	if _, err := s.DB().Exec(`UPDATE sessions SET last_activity = ? WHERE token = ?`, stale, token); err != nil {
		t.Fatalf("backdate session: %v", err)
	}

	if _, err := r.Validate(token); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired for idle session, got %v", err)
	}
}
