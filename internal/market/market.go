// Package market implements the seller-listed marketplace: list, buy,
// delist, and search, grounded on the rpc handlers and
// original_source/src/server/market.c — with the reference
// implementation's manual compensating-write rollback on buy replaced
// by a real transaction (spec fidelity fix, see §4.6/§4.8 of the
// expanded design).
package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// FeeRate is the house cut taken from every sale.
const FeeRate = 0.15

// TradeLockDuration is how long a listed-then-bought item stays
// untradable after changing hands through the market.
const TradeLockDuration = 7 * 24 * time.Hour

// ErrNotOwner is returned by List when the caller doesn't own the
// instance.
var ErrNotOwner = errors.New("market: caller does not own instance")

// ErrAlreadySold is returned by Buy/Delist for a listing no longer
// open.
var ErrAlreadySold = errors.New("market: listing already sold")

// ErrSelfTrade is returned by Buy when the buyer is also the seller.
var ErrSelfTrade = errors.New("market: cannot buy your own listing")

// Engine lists and settles market trades against the store.
type Engine struct {
	store *store.Store
	hooks *hooks.Hooks
}

// New returns an Engine.
func New(s *store.Store, h *hooks.Hooks) *Engine {
	return &Engine{store: s, hooks: h}
}

// List creates an open listing for instanceID, owned by sellerID, and
// applies the market trade-lock to the instance.
func (e *Engine) List(sellerID, instanceID int64, price float64) (*store.MarketListing, error) {
	inst, err := e.store.GetSkinInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	if inst.OwnerID != sellerID {
		return nil, ErrNotOwner
	}

	listingID, err := e.store.CreateListing(instanceID, sellerID, price)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	tx, err := e.store.DB().Begin()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer tx.Rollback()
	if err := store.SetTradeLockTx(tx, instanceID, false, time.Now()); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	return e.store.GetListing(listingID)
}

// Delist removes an open listing. The trade-lock clock is left as-is;
// it is not reset on delist.
func (e *Engine) Delist(sellerID, listingID int64) error {
	listing, err := e.store.GetListing(listingID)
	if err != nil {
		return fmt.Errorf("delist: %w", err)
	}
	if listing.SellerID != sellerID {
		return ErrNotOwner
	}
	if listing.IsSold {
		return ErrAlreadySold
	}
	if err := e.store.DeleteListing(listingID); err != nil {
		return fmt.Errorf("delist: %w", err)
	}
	return nil
}

// Buy settles a purchase: debit the buyer, credit the seller the
// post-fee payout, transfer ownership, and mark the listing sold — all
// in one transaction so a failure partway through can't leave the
// listing sold with no ownership transfer, or vice versa.
func (e *Engine) Buy(buyerID, listingID int64) (*store.MarketListing, error) {
	listing, err := e.store.GetListing(listingID)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if listing.IsSold {
		return nil, ErrAlreadySold
	}
	if buyerID == listing.SellerID {
		return nil, ErrSelfTrade
	}

	fee := listing.Price * FeeRate
	payout := listing.Price - fee

	tx, err := e.store.DB().Begin()
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	defer tx.Rollback()

	if err := store.AdjustBalance(tx, buyerID, -listing.Price); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if err := store.AdjustBalance(tx, listing.SellerID, payout); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if err := store.MarkListingSoldTx(tx, listingID, buyerID); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if err := store.TransferOwnershipTx(tx, listing.InstanceID, listing.SellerID, buyerID); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if err := store.SetTradeLockTx(tx, listing.InstanceID, false, time.Now()); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}

	e.fireHooks(buyerID, listing)
	return e.store.GetListing(listingID)
}

// Search returns open listings whose instance definition name matches
// term as a substring.
func (e *Engine) Search(term string) ([]*store.MarketListing, error) {
	return e.store.SearchListingsByName(term)
}

// ListOpen returns every open listing.
func (e *Engine) ListOpen() ([]*store.MarketListing, error) {
	return e.store.GetOpenListings()
}

func (e *Engine) fireHooks(buyerID int64, listing *store.MarketListing) {
	if e.hooks == nil {
		return
	}
	inst, err := e.store.GetSkinInstance(listing.InstanceID)
	if err != nil {
		return
	}
	_ = e.hooks.RecordSale(inst.DefinitionID, listing.Price)
	_ = e.hooks.LogTransaction("market_buy", buyerID, fmt.Sprintf("bought listing %d for $%.2f", listing.ID, listing.Price))
	_ = e.hooks.LogTransaction("market_sell", listing.SellerID, fmt.Sprintf("sold listing %d for $%.2f", listing.ID, listing.Price))
	_, _ = e.hooks.BumpQuest(buyerID, hooks.QuestMarketExplorer, 1)
}
