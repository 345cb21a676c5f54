package store

import (
	"database/sql"
	"fmt"
	"time"
)

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Balance      float64
	IsBanned     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// CreateUser inserts a new user row with the given starting balance.
func (s *Store) CreateUser(username, passwordHash string, startingBalance float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO users (username, password_hash, balance, is_banned, created_at) VALUES (?, ?, ?, 0, ?)`,
		username, passwordHash, startingBalance, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

// UserExists reports whether a username is already taken.
func (s *Store) UserExists(username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return true, nil
}

// GetUserByUsername loads a user row by username.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, balance, is_banned, created_at, last_login FROM users WHERE username = ?`,
		username))
}

// GetUser loads a user row by id.
func (s *Store) GetUser(userID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, balance, is_banned, created_at, last_login FROM users WHERE id = ?`,
		userID))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	var lastLogin sql.NullInt64
	var isBanned int

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Balance, &isBanned, &createdAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.IsBanned = isBanned != 0
	u.CreatedAt = time.Unix(createdAt, 0)
	if lastLogin.Valid {
		t := time.Unix(lastLogin.Int64, 0)
		u.LastLogin = &t
	}
	return &u, nil
}

// UpdateLastLogin stamps a user's last_login to now.
func (s *Store) UpdateLastLogin(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// AdjustBalance applies a signed delta to a user's balance within an
// existing transaction. Negative deltas that would drive the balance
// below zero are rejected with ErrInsufficientFund rather than applied.
func AdjustBalance(tx *sql.Tx, userID int64, delta float64) error {
	var balance float64
	if err := tx.QueryRow(`SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("load balance: %w", err)
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return ErrInsufficientFund
	}

	if _, err := tx.Exec(`UPDATE users SET balance = ? WHERE id = ?`, newBalance, userID); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}
