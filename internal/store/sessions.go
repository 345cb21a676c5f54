package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session is an authenticated, logged-in client's state.
type Session struct {
	Token        string
	UserID       int64
	LoginTime    time.Time
	LastActivity time.Time
	IsActive     bool
}

// CreateSession persists a new session row.
func (s *Store) CreateSession(token string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO sessions (token, user_id, login_time, last_activity, is_active) VALUES (?, ?, ?, ?, 1)`,
		token, userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads a session row by token.
func (s *Store) GetSession(token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess Session
	var loginTime, lastActivity int64
	var isActive int

	err := s.db.QueryRow(
		`SELECT token, user_id, login_time, last_activity, is_active FROM sessions WHERE token = ?`,
		token,
	).Scan(&sess.Token, &sess.UserID, &loginTime, &lastActivity, &isActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.LoginTime = time.Unix(loginTime, 0)
	sess.LastActivity = time.Unix(lastActivity, 0)
	sess.IsActive = isActive != 0
	return &sess, nil
}

// TouchSession bumps a session's last_activity to now.
func (s *Store) TouchSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE sessions SET last_activity = ? WHERE token = ?`, time.Now().Unix(), token)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session row (logout).
func (s *Store) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
