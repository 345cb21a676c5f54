// Package trade implements peer-to-peer trade offers: send, accept,
// decline, cancel, and a reaper sweep for expiry, grounded on
// original_source/src/server/trading.c. The reference accept path ran
// the item/cash swap as a sequence of unguarded writes with no rollback
// at all; here the whole swap is one transaction.
package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// OfferTTL is how long a pending offer stays acceptable.
const OfferTTL = 15 * time.Minute

// ErrEmptyOffer is returned by Send when neither side offers anything.
var ErrEmptyOffer = errors.New("trade: offer must include at least one item or cash amount on a side")

// ErrSelfTrade is returned by Send when from and to are the same user.
var ErrSelfTrade = errors.New("trade: cannot trade with yourself")

// ErrNotOwned is returned by Send when an offered/requested instance
// isn't owned by the expected side.
var ErrNotOwned = errors.New("trade: instance not owned by expected party")

// ErrNotParty is returned by Accept/Decline/Cancel when the caller
// isn't the side allowed to perform that action.
var ErrNotParty = errors.New("trade: caller is not a party to this action")

// ErrNotPending is returned by Accept for a trade no longer pending.
// Decline and Cancel report that case as store.ErrConflict from the
// pending-only status update.
var ErrNotPending = errors.New("trade: offer is not pending")

// ErrExpired is returned by Accept for an offer whose TTL has lapsed;
// the offer is flipped to expired as a side effect.
var ErrExpired = errors.New("trade: offer has expired")

// Engine sends and settles trade offers against the store.
type Engine struct {
	store *store.Store
	hooks *hooks.Hooks
}

// New returns an Engine.
func New(s *store.Store, h *hooks.Hooks) *Engine {
	return &Engine{store: s, hooks: h}
}

// Send validates and persists a new pending offer.
func (e *Engine) Send(fromUserID, toUserID int64, offeredItems, requestedItems []int64, offeredCash, requestedCash float64) (*store.TradeOffer, error) {
	if fromUserID == toUserID {
		return nil, ErrSelfTrade
	}
	if len(offeredItems) == 0 && len(requestedItems) == 0 && offeredCash == 0 && requestedCash == 0 {
		return nil, ErrEmptyOffer
	}

	for _, id := range offeredItems {
		inst, err := e.store.GetSkinInstance(id)
		if err != nil {
			return nil, fmt.Errorf("send offer: %w", err)
		}
		if inst.OwnerID != fromUserID {
			return nil, ErrNotOwned
		}
	}
	for _, id := range requestedItems {
		inst, err := e.store.GetSkinInstance(id)
		if err != nil {
			return nil, fmt.Errorf("send offer: %w", err)
		}
		if inst.OwnerID != toUserID {
			return nil, ErrNotOwned
		}
	}

	fromUser, err := e.store.GetUser(fromUserID)
	if err != nil {
		return nil, fmt.Errorf("send offer: %w", err)
	}
	toUser, err := e.store.GetUser(toUserID)
	if err != nil {
		return nil, fmt.Errorf("send offer: %w", err)
	}
	if fromUser.Balance < offeredCash {
		return nil, store.ErrInsufficientFund
	}
	if toUser.Balance < requestedCash {
		return nil, store.ErrInsufficientFund
	}

	now := time.Now()
	offer := &store.TradeOffer{
		FromUserID:     fromUserID,
		ToUserID:       toUserID,
		OfferedItems:   offeredItems,
		RequestedItems: requestedItems,
		OfferedCash:    offeredCash,
		RequestedCash:  requestedCash,
		ExpiresAt:      now.Add(OfferTTL),
	}
	tradeID, err := e.store.CreateTradeOffer(offer)
	if err != nil {
		return nil, fmt.Errorf("send offer: %w", err)
	}
	return e.store.GetTradeOffer(tradeID)
}

// Accept settles the swap and marks the offer accepted. Only toUserID
// may accept.
func (e *Engine) Accept(callerID, tradeID int64) (*store.TradeOffer, error) {
	offer, err := e.store.GetTradeOffer(tradeID)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	if callerID != offer.ToUserID {
		return nil, ErrNotParty
	}
	if offer.Status != store.TradeStatusPending {
		return nil, ErrNotPending
	}
	if time.Now().After(offer.ExpiresAt) {
		_ = e.store.SetTradeStatus(tradeID, store.TradeStatusPending, store.TradeStatusExpired)
		return nil, ErrExpired
	}

	tx, err := e.store.DB().Begin()
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	defer tx.Rollback()

	for _, id := range offer.OfferedItems {
		if err := store.TransferOwnershipTx(tx, id, offer.FromUserID, offer.ToUserID); err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
	for _, id := range offer.RequestedItems {
		if err := store.TransferOwnershipTx(tx, id, offer.ToUserID, offer.FromUserID); err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
	if offer.OfferedCash != 0 {
		if err := store.AdjustBalance(tx, offer.FromUserID, -offer.OfferedCash); err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
		if err := store.AdjustBalance(tx, offer.ToUserID, offer.OfferedCash); err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
	if offer.RequestedCash != 0 {
		if err := store.AdjustBalance(tx, offer.ToUserID, -offer.RequestedCash); err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
		if err := store.AdjustBalance(tx, offer.FromUserID, offer.RequestedCash); err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
	if err := store.SetTradeStatusTx(tx, tradeID, store.TradeStatusPending, store.TradeStatusAccepted); err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}

	e.fireAcceptHooks(offer)
	return e.store.GetTradeOffer(tradeID)
}

// Decline marks a pending offer declined. Only toUserID may decline.
func (e *Engine) Decline(callerID, tradeID int64) error {
	offer, err := e.store.GetTradeOffer(tradeID)
	if err != nil {
		return fmt.Errorf("decline: %w", err)
	}
	if callerID != offer.ToUserID {
		return ErrNotParty
	}
	return e.store.SetTradeStatus(tradeID, store.TradeStatusPending, store.TradeStatusDeclined)
}

// Cancel marks a pending offer cancelled. Only fromUserID may cancel.
func (e *Engine) Cancel(callerID, tradeID int64) error {
	offer, err := e.store.GetTradeOffer(tradeID)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if callerID != offer.FromUserID {
		return ErrNotParty
	}
	return e.store.SetTradeStatus(tradeID, store.TradeStatusPending, store.TradeStatusCancelled)
}

// ListUserTrades returns every trade offer involving userID.
func (e *Engine) ListUserTrades(userID int64) ([]*store.TradeOffer, error) {
	return e.store.ListUserTrades(userID)
}

// Reap flips every pending offer past its expiry to expired, returning
// how many changed.
func (e *Engine) Reap() (int, error) {
	ids, err := e.store.ExpirePendingTrades()
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	return len(ids), nil
}

func (e *Engine) fireAcceptHooks(offer *store.TradeOffer) {
	if e.hooks == nil {
		return
	}
	_, _ = e.hooks.BumpQuest(offer.FromUserID, hooks.QuestFirstSteps, 1)
	_, _ = e.hooks.BumpQuest(offer.ToUserID, hooks.QuestFirstSteps, 1)
	_, _ = e.hooks.BumpQuest(offer.FromUserID, hooks.QuestSocialTrader, 1)
	_, _ = e.hooks.BumpQuest(offer.ToUserID, hooks.QuestSocialTrader, 1)
	_, _ = e.hooks.UnlockAchievement(offer.FromUserID, hooks.AchievementFirstTrade)
	_, _ = e.hooks.UnlockAchievement(offer.ToUserID, hooks.AchievementFirstTrade)
}
