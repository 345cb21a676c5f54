package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MarketListing is a skin instance offered for sale.
type MarketListing struct {
	ID         int64
	InstanceID int64
	SellerID   int64
	Price      float64
	ListedAt   time.Time
	IsSold     bool
	SoldAt     *time.Time
	BuyerID    *int64
}

const listingSelectQuery = `
	SELECT id, instance_id, seller_id, price, listed_at, is_sold, sold_at, buyer_id
	FROM market_listings`

func scanListing(row *sql.Row) (*MarketListing, error) {
	var l MarketListing
	var listedAt int64
	var isSold int
	var soldAt, buyerID sql.NullInt64

	err := row.Scan(&l.ID, &l.InstanceID, &l.SellerID, &l.Price, &listedAt, &isSold, &soldAt, &buyerID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}

	l.ListedAt = time.Unix(listedAt, 0)
	l.IsSold = isSold != 0
	if soldAt.Valid {
		t := time.Unix(soldAt.Int64, 0)
		l.SoldAt = &t
	}
	if buyerID.Valid {
		id := buyerID.Int64
		l.BuyerID = &id
	}
	return &l, nil
}

// CreateListing inserts a new open market listing.
func (s *Store) CreateListing(instanceID, sellerID int64, price float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO market_listings (instance_id, seller_id, price, listed_at, is_sold) VALUES (?, ?, ?, ?, 0)`,
		instanceID, sellerID, price, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("create listing: %w", err)
	}
	return res.LastInsertId()
}

// GetListing loads a listing by id.
func (s *Store) GetListing(listingID int64) (*MarketListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanListing(s.db.QueryRow(listingSelectQuery+` WHERE id = ?`, listingID))
}

// GetOpenListings returns every unsold listing.
func (s *Store) GetOpenListings() ([]*MarketListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(listingSelectQuery + ` WHERE is_sold = 0 ORDER BY listed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list open listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// SearchListingsByName returns open listings whose instance's definition
// name matches a substring search term (case-insensitive).
func (s *Store) SearchListingsByName(term string) ([]*MarketListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT ml.id, ml.instance_id, ml.seller_id, ml.price, ml.listed_at, ml.is_sold, ml.sold_at, ml.buyer_id
		FROM market_listings ml
		JOIN skin_instances si ON si.id = ml.instance_id
		JOIN skin_definitions sd ON sd.id = si.definition_id
		WHERE ml.is_sold = 0 AND sd.name LIKE ?
		ORDER BY ml.listed_at DESC`, "%"+term+"%")
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

func scanListings(rows *sql.Rows) ([]*MarketListing, error) {
	var out []*MarketListing
	for rows.Next() {
		var l MarketListing
		var listedAt int64
		var isSold int
		var soldAt, buyerID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.InstanceID, &l.SellerID, &l.Price, &listedAt, &isSold, &soldAt, &buyerID); err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		l.ListedAt = time.Unix(listedAt, 0)
		l.IsSold = isSold != 0
		if soldAt.Valid {
			t := time.Unix(soldAt.Int64, 0)
			l.SoldAt = &t
		}
		if buyerID.Valid {
			id := buyerID.Int64
			l.BuyerID = &id
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// DeleteListing removes an open listing (delist).
func (s *Store) DeleteListing(listingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM market_listings WHERE id = ?`, listingID)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

// MarkListingSoldTx marks an open listing sold inside an existing
// transaction. Returns ErrConflict if the listing was already sold —
// the atomic "mark sold" check the reference implementation's
// compensating-write approach lacked.
func MarkListingSoldTx(tx *sql.Tx, listingID, buyerID int64) error {
	res, err := tx.Exec(
		`UPDATE market_listings SET is_sold = 1, sold_at = ?, buyer_id = ? WHERE id = ? AND is_sold = 0`,
		time.Now().Unix(), buyerID, listingID,
	)
	if err != nil {
		return fmt.Errorf("mark listing sold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark listing sold rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
