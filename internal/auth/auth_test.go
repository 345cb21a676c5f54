package auth

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/session"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir, err := os.MkdirTemp("", "klingoserver-auth-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return New(s, session.New(s), LegacyHasher{}, hooks.New(s))
}

func TestLoginAdvancesLoginStreak(t *testing.T) {
	a := newTestService(t)

	userID, err := a.Register("carol", "password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, _, err := a.Login("carol", "password"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	streak, err := a.store.GetLoginStreak(userID)
	if err != nil {
		t.Fatalf("GetLoginStreak() error = %v", err)
	}
	if streak.LastLoginDate.IsZero() {
		t.Error("expected login to touch the login streak's last-login date")
	}
}

func TestLegacyHasherRoundTrip(t *testing.T) {
	h := LegacyHasher{}
	hash := h.Hash("hunter2")
	if len(hash) != 16 {
		t.Errorf("expected 16 hex char digest, got %d (%s)", len(hash), hash)
	}
	if !h.Verify("hunter2", hash) {
		t.Error("expected Verify to accept the correct password")
	}
	if h.Verify("wrong", hash) {
		t.Error("expected Verify to reject the wrong password")
	}
}

func TestRegisterThenLogin(t *testing.T) {
	a := newTestService(t)

	userID, err := a.Register("alice", "password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if userID != 1 {
		t.Errorf("expected first user id 1, got %d", userID)
	}

	token, loginID, err := a.Login("alice", "password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if loginID != userID {
		t.Errorf("expected login user id %d, got %d", userID, loginID)
	}
	if len(token) != 32 {
		t.Errorf("expected 32 char session token, got %d", len(token))
	}

	if _, _, err := a.Login("alice", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestRegisterRejectsBadLengths(t *testing.T) {
	a := newTestService(t)

	if _, err := a.Register("ab", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for short username, got %v", err)
	}
	if _, err := a.Register(strings.Repeat("a", 32), "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for long username, got %v", err)
	}
	if _, err := a.Register("alice", "short"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for short password, got %v", err)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	a := newTestService(t)

	if _, err := a.Register("alice", "password"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := a.Register("alice", "different"); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	a := newTestService(t)

	if _, _, err := a.Login("ghost", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutThenValidateExpired(t *testing.T) {
	a := newTestService(t)

	if _, err := a.Register("bob", "password"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	token, _, err := a.Login("bob", "password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := a.ValidateSession(token); err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}

	if err := a.Logout(token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, err := a.ValidateSession(token); !errors.Is(err, session.ErrExpired) {
		t.Errorf("expected session.ErrExpired after logout, got %v", err)
	}
}
