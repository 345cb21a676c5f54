package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TradeStatus is a peer trade offer's lifecycle state.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusDeclined  TradeStatus = "declined"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusExpired   TradeStatus = "expired"
)

// IsTerminal reports whether a status rejects further accept/decline/cancel.
func (s TradeStatus) IsTerminal() bool {
	return s != TradeStatusPending
}

// TradeOffer is a proposed bilateral exchange of items and/or cash
// between two users.
type TradeOffer struct {
	ID            int64
	FromUserID    int64
	ToUserID      int64
	OfferedItems  []int64
	RequestedItems []int64
	OfferedCash   float64
	RequestedCash float64
	Status        TradeStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// CreateTradeOffer persists a new pending trade offer and its item rows.
func (s *Store) CreateTradeOffer(offer *TradeOffer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO trades (from_user_id, to_user_id, offered_cash, requested_cash, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		offer.FromUserID, offer.ToUserID, offer.OfferedCash, offer.RequestedCash,
		string(TradeStatusPending), now.Unix(), offer.ExpiresAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("create trade offer: %w", err)
	}

	tradeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create trade offer id: %w", err)
	}

	for _, instanceID := range offer.OfferedItems {
		if _, err := s.db.Exec(`INSERT INTO trade_items (trade_id, side, instance_id) VALUES (?, 'offered', ?)`,
			tradeID, instanceID); err != nil {
			return 0, fmt.Errorf("insert offered item: %w", err)
		}
	}
	for _, instanceID := range offer.RequestedItems {
		if _, err := s.db.Exec(`INSERT INTO trade_items (trade_id, side, instance_id) VALUES (?, 'requested', ?)`,
			tradeID, instanceID); err != nil {
			return 0, fmt.Errorf("insert requested item: %w", err)
		}
	}

	return tradeID, nil
}

// GetTradeOffer loads a trade offer and its item lists.
func (s *Store) GetTradeOffer(tradeID int64) (*TradeOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadTradeOffer(tradeID)
}

func (s *Store) loadTradeOffer(tradeID int64) (*TradeOffer, error) {
	var t TradeOffer
	var status string
	var createdAt, expiresAt int64

	err := s.db.QueryRow(`
		SELECT id, from_user_id, to_user_id, offered_cash, requested_cash, status, created_at, expires_at
		FROM trades WHERE id = ?`, tradeID,
	).Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.OfferedCash, &t.RequestedCash, &status, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade offer: %w", err)
	}

	t.Status = TradeStatus(status)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.ExpiresAt = time.Unix(expiresAt, 0)

	t.OfferedItems, err = s.tradeItems(tradeID, "offered")
	if err != nil {
		return nil, err
	}
	t.RequestedItems, err = s.tradeItems(tradeID, "requested")
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) tradeItems(tradeID int64, side string) ([]int64, error) {
	rows, err := s.db.Query(`SELECT instance_id FROM trade_items WHERE trade_id = ? AND side = ?`, tradeID, side)
	if err != nil {
		return nil, fmt.Errorf("list trade items: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trade item: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListUserTrades returns every trade offer involving a user, on either
// side.
func (s *Store) ListUserTrades(userID int64) ([]*TradeOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id FROM trades WHERE from_user_id = ? OR to_user_id = ? ORDER BY created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user trades: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trade id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []*TradeOffer
	for _, id := range ids {
		t, err := s.loadTradeOffer(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SetTradeStatusTx updates a trade's status within an existing
// transaction, enforcing that the prior status was the expected one
// (normally pending) so a terminal trade can't be transitioned twice.
func SetTradeStatusTx(tx *sql.Tx, tradeID int64, from, to TradeStatus) error {
	res, err := tx.Exec(`UPDATE trades SET status = ? WHERE id = ? AND status = ?`,
		string(to), tradeID, string(from))
	if err != nil {
		return fmt.Errorf("set trade status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set trade status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// SetTradeStatus updates a trade's status outside a transaction (used
// for the single-row transitions that don't participate in the
// bilateral swap: expiring an offer on accept, decline, and cancel).
func (s *Store) SetTradeStatus(tradeID int64, from, to TradeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE trades SET status = ? WHERE id = ? AND status = ?`,
		string(to), tradeID, string(from))
	if err != nil {
		return fmt.Errorf("set trade status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set trade status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// ExpirePendingTrades flips every pending trade past its expiry to
// expired, returning the ids that changed. Used by the reaper sweep.
func (s *Store) ExpirePendingTrades() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	rows, err := s.db.Query(`SELECT id FROM trades WHERE status = ? AND expires_at < ?`, string(TradeStatusPending), now)
	if err != nil {
		return nil, fmt.Errorf("find expired trades: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired trade id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.Exec(`UPDATE trades SET status = ? WHERE id = ? AND status = ?`,
			string(TradeStatusExpired), id, string(TradeStatusPending)); err != nil {
			return nil, fmt.Errorf("expire trade %d: %w", id, err)
		}
	}
	return ids, nil
}
