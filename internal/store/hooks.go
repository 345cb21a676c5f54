package store

import (
	"database/sql"
	"fmt"
	"time"
)

// LogTransaction appends a transaction-log row.
func (s *Store) LogTransaction(logType string, userID int64, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO transaction_logs (log_type, user_id, details, timestamp) VALUES (?, ?, ?, ?)`,
		logType, userID, details, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("log transaction: %w", err)
	}
	return nil
}

// RecordPriceHistory appends a price sample for a skin definition.
func (s *Store) RecordPriceHistory(definitionID int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO price_history (definition_id, price, recorded_at) VALUES (?, ?, ?)`,
		definitionID, price, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record price history: %w", err)
	}
	return nil
}

// Quest is a user's progress against one named quest.
type Quest struct {
	UserID    int64
	Key       string
	Progress  float64
	Completed bool
	Claimed   bool
}

// UpdateQuestProgress adds delta to a user's progress on a quest,
// creating the row if absent, and marks it completed once progress
// reaches target. Returns the quest's new state.
func (s *Store) UpdateQuestProgress(userID int64, key string, delta, target float64) (*Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("update quest progress: %w", err)
	}
	defer tx.Rollback()

	var progress float64
	var completed, claimed int
	err = tx.QueryRow(`SELECT progress, completed, claimed FROM quests WHERE user_id = ? AND quest_key = ?`,
		userID, key).Scan(&progress, &completed, &claimed)

	if err == sql.ErrNoRows {
		progress = 0
		completed, claimed = 0, 0
		if _, err := tx.Exec(`INSERT INTO quests (user_id, quest_key, progress, completed, claimed) VALUES (?, ?, 0, 0, 0)`,
			userID, key); err != nil {
			return nil, fmt.Errorf("create quest row: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load quest: %w", err)
	}

	progress += delta
	if progress >= target {
		completed = 1
	}

	if _, err := tx.Exec(`UPDATE quests SET progress = ?, completed = ? WHERE user_id = ? AND quest_key = ?`,
		progress, completed, userID, key); err != nil {
		return nil, fmt.Errorf("update quest progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update quest progress: %w", err)
	}

	return &Quest{UserID: userID, Key: key, Progress: progress, Completed: completed != 0, Claimed: claimed != 0}, nil
}

// ClaimQuestReward credits reward to userID's balance and marks the
// named quest claimed, failing if the quest isn't complete or was
// already claimed. The progress-completed check and the balance credit
// run in one transaction so a double-submit can't double-pay.
func (s *Store) ClaimQuestReward(userID int64, key string, reward float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("claim quest reward: %w", err)
	}
	defer tx.Rollback()

	var completed, claimed int
	err = tx.QueryRow(`SELECT completed, claimed FROM quests WHERE user_id = ? AND quest_key = ?`, userID, key).Scan(&completed, &claimed)
	if err == sql.ErrNoRows {
		return ErrConflict // never progressed, so not complete
	}
	if err != nil {
		return fmt.Errorf("claim quest reward: %w", err)
	}
	if completed == 0 {
		return ErrConflict
	}
	if claimed != 0 {
		return ErrAlreadyExists
	}

	if _, err := tx.Exec(`UPDATE quests SET claimed = 1 WHERE user_id = ? AND quest_key = ?`, userID, key); err != nil {
		return fmt.Errorf("claim quest reward: %w", err)
	}
	if err := AdjustBalance(tx, userID, reward); err != nil {
		return fmt.Errorf("claim quest reward: %w", err)
	}

	return tx.Commit()
}

// ClaimAchievementReward credits reward to userID's balance and marks
// the named achievement claimed, failing if it isn't unlocked or was
// already claimed.
func (s *Store) ClaimAchievementReward(userID int64, key string, reward float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("claim achievement reward: %w", err)
	}
	defer tx.Rollback()

	var claimed int
	err = tx.QueryRow(`SELECT claimed FROM achievements WHERE user_id = ? AND achievement_key = ?`, userID, key).Scan(&claimed)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("claim achievement reward: %w", err)
	}
	if claimed != 0 {
		return ErrAlreadyExists
	}

	if _, err := tx.Exec(`UPDATE achievements SET claimed = 1 WHERE user_id = ? AND achievement_key = ?`, userID, key); err != nil {
		return fmt.Errorf("claim achievement reward: %w", err)
	}
	if err := AdjustBalance(tx, userID, reward); err != nil {
		return fmt.Errorf("claim achievement reward: %w", err)
	}

	return tx.Commit()
}

// UnlockAchievement records a user's achievement unlock if not already
// present. Returns true if this call performed the unlock (first time).
func (s *Store) UnlockAchievement(userID int64, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow(`SELECT 1 FROM achievements WHERE user_id = ? AND achievement_key = ?`, userID, key).Scan(&existing)
	if err == nil {
		return false, nil // already unlocked
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("check achievement: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO achievements (user_id, achievement_key, unlocked_at, claimed) VALUES (?, ?, ?, 0)`,
		userID, key, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	return true, nil
}

// LoginStreak is a user's consecutive daily-login state.
type LoginStreak struct {
	UserID         int64
	CurrentStreak  int
	LastLoginDate  time.Time
	LastRewardDate time.Time
}

// GetLoginStreak loads a user's streak row, creating a fresh zero streak
// if one doesn't exist yet.
func (s *Store) GetLoginStreak(userID int64) (*LoginStreak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var streak LoginStreak
	var lastLogin, lastReward int64
	err := s.db.QueryRow(`SELECT user_id, current_streak, last_login_date, last_reward_date FROM login_streaks WHERE user_id = ?`,
		userID).Scan(&streak.UserID, &streak.CurrentStreak, &lastLogin, &lastReward)

	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(`INSERT INTO login_streaks (user_id, current_streak, last_login_date, last_reward_date) VALUES (?, 0, 0, 0)`,
			userID); err != nil {
			return nil, fmt.Errorf("create login streak: %w", err)
		}
		return &LoginStreak{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get login streak: %w", err)
	}

	streak.LastLoginDate = time.Unix(lastLogin, 0)
	streak.LastRewardDate = time.Unix(lastReward, 0)
	return &streak, nil
}

// SaveLoginStreak persists a streak row's current values.
func (s *Store) SaveLoginStreak(streak *LoginStreak) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE login_streaks SET current_streak = ?, last_login_date = ?, last_reward_date = ? WHERE user_id = ?`,
		streak.CurrentStreak, streak.LastLoginDate.Unix(), streak.LastRewardDate.Unix(), streak.UserID)
	if err != nil {
		return fmt.Errorf("save login streak: %w", err)
	}
	return nil
}

// CreateReport inserts a user report.
func (s *Store) CreateReport(reporterID, reportedID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO reports (reporter_id, reported_id, reason, created_at) VALUES (?, ?, ?, ?)`,
		reporterID, reportedID, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// ReportCount returns how many reports exist against a user.
func (s *Store) ReportCount(reportedID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reports WHERE reported_id = ?`, reportedID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return count, nil
}

// SaveChatMessage persists a chat line. userID is nil for system
// broadcasts (rare-unbox announcements, warnings).
func (s *Store) SaveChatMessage(userID *int64, username, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}

	_, err := s.db.Exec(`INSERT INTO chat_messages (user_id, username, message, sent_at) VALUES (?, ?, ?, ?)`,
		uid, username, message, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	return nil
}

// ChatMessage is one persisted chat line.
type ChatMessage struct {
	ID       int64
	Username string
	Message  string
	SentAt   time.Time
}

// RecentChatMessages returns the last limit chat messages, oldest first.
func (s *Store) RecentChatMessages(limit int) ([]*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, username, message, sent_at FROM chat_messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent chat messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var sentAt int64
		if err := rows.Scan(&m.ID, &m.Username, &m.Message, &sentAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.SentAt = time.Unix(sentAt, 0)
		out = append(out, &m)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
