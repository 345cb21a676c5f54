// Package dispatch routes decoded wire frames to the domain services
// and encodes their results back into response frames. Grounded on the
// rpc package's handler-table idiom (one function per message type,
// uniform error-to-ERROR-frame mapping).
//
// Request/response payloads are UTF-8 text, colon-separated fields and
// newline-separated rows — the wire table in the external-interfaces
// section specifies field shapes ("username:password",
// "user_id:listing_id", ...) but not a binary struct layout, so struct
// and array payloads use the same colon/newline convention for
// consistency with the scalar ones.
package dispatch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/klingon-exchange/klingon-v2/internal/auth"
	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/market"
	"github.com/klingon-exchange/klingon-v2/internal/protocol"
	"github.com/klingon-exchange/klingon-v2/internal/session"
	"github.com/klingon-exchange/klingon-v2/internal/store"
	"github.com/klingon-exchange/klingon-v2/internal/trade"
	"github.com/klingon-exchange/klingon-v2/internal/unbox"
	"github.com/klingon-exchange/klingon-v2/pkg/logging"
)

// Response is a fully formed reply frame's type and payload, ready for
// protocol.WriteFrame.
type Response struct {
	MsgType uint16
	Payload []byte
}

// Dispatcher routes one decoded request frame to a domain handler.
type Dispatcher struct {
	store  *store.Store
	auth   *auth.Service
	market *market.Engine
	trade  *trade.Engine
	unbox  *unbox.Engine
	hooks  *hooks.Hooks
	log    *logging.Logger

	handlers map[uint16]func(*Dispatcher, []byte) (Response, error)
}

// New wires a Dispatcher over the given domain services.
func New(s *store.Store, a *auth.Service, m *market.Engine, t *trade.Engine, u *unbox.Engine, h *hooks.Hooks) *Dispatcher {
	d := &Dispatcher{
		store:  s,
		auth:   a,
		market: m,
		trade:  t,
		unbox:  u,
		hooks:  h,
		log:    logging.GetDefault().Component("dispatch"),
	}
	d.handlers = map[uint16]func(*Dispatcher, []byte) (Response, error){
		protocol.MsgRegister:     (*Dispatcher).handleRegister,
		protocol.MsgLogin:        (*Dispatcher).handleLogin,
		protocol.MsgLogout:       (*Dispatcher).handleLogout,
		protocol.MsgMarketList:   (*Dispatcher).handleMarketList,
		protocol.MsgMarketBuy:    (*Dispatcher).handleMarketBuy,
		protocol.MsgMarketSell:   (*Dispatcher).handleMarketSell,
		protocol.MsgMarketDelist: (*Dispatcher).handleMarketDelist,
		protocol.MsgMarketSearch: (*Dispatcher).handleMarketSearch,
		protocol.MsgTradeSend:    (*Dispatcher).handleTradeSend,
		protocol.MsgTradeAccept:  (*Dispatcher).handleTradeAccept,
		protocol.MsgTradeDecline: (*Dispatcher).handleTradeDecline,
		protocol.MsgTradeCancel:  (*Dispatcher).handleTradeCancel,
		protocol.MsgTradeList:    (*Dispatcher).handleTradeList,
		protocol.MsgInventory:    (*Dispatcher).handleInventory,
		protocol.MsgProfile:      (*Dispatcher).handleProfile,
		protocol.MsgSkinDetail:   (*Dispatcher).handleSkinDetail,
		protocol.MsgUserSearch:   (*Dispatcher).handleUserSearch,
		protocol.MsgUnbox:        (*Dispatcher).handleUnbox,
		protocol.MsgCaseList:     (*Dispatcher).handleCaseList,
		protocol.MsgChat:             (*Dispatcher).handleChat,
		protocol.MsgQuestClaim:       (*Dispatcher).handleQuestClaim,
		protocol.MsgAchievementClaim: (*Dispatcher).handleAchievementClaim,
		protocol.MsgDailyRewardClaim: (*Dispatcher).handleDailyRewardClaim,
		protocol.MsgReport:           (*Dispatcher).handleReport,
		protocol.MsgHeartbeat:        (*Dispatcher).handleHeartbeat,
	}
	return d
}

// Dispatch routes a decoded request frame and always returns a
// Response — on error, it's an ERROR frame carrying the originating
// message type and mapped error code.
func (d *Dispatcher) Dispatch(msgType uint16, payload []byte) Response {
	handler, ok := d.handlers[msgType]
	if !ok {
		return errorResponse(msgType, protocol.ErrInvalidRequest)
	}

	resp, err := handler(d, payload)
	if err != nil {
		d.log.Debug("handler error", "msg_type", msgType, "error", err)
		return errorResponse(msgType, mapError(err))
	}
	return resp
}

func errorResponse(originatingMsgType uint16, code protocol.ErrorCode) Response {
	return Response{
		MsgType: protocol.MsgError,
		Payload: []byte(fmt.Sprintf("%d:%d", originatingMsgType, code)),
	}
}

// mapError maps a domain/store error onto the closed wire error-code
// set. Unrecognized errors are treated as database errors rather than
// leaking internals onto the wire.
func mapError(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return protocol.ErrInvalidCredentials
	case errors.Is(err, auth.ErrUserExists):
		return protocol.ErrUserExists
	case errors.Is(err, auth.ErrBanned):
		return protocol.ErrBanned
	case errors.Is(err, session.ErrExpired):
		return protocol.ErrSessionExpired
	case errors.Is(err, store.ErrInsufficientFund):
		return protocol.ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return protocol.ErrItemNotFound
	case errors.Is(err, store.ErrConflict):
		return protocol.ErrInvalidTrade
	case errors.Is(err, store.ErrAlreadyExists):
		return protocol.ErrInvalidRequest
	case errors.Is(err, hooks.ErrAlreadyClaimed):
		return protocol.ErrInvalidRequest
	case errors.Is(err, market.ErrNotOwner), errors.Is(err, market.ErrSelfTrade):
		return protocol.ErrPermissionDenied
	case errors.Is(err, market.ErrAlreadySold):
		return protocol.ErrInvalidTrade
	case errors.Is(err, trade.ErrNotParty):
		return protocol.ErrPermissionDenied
	case errors.Is(err, trade.ErrNotPending), errors.Is(err, trade.ErrEmptyOffer),
		errors.Is(err, trade.ErrSelfTrade), errors.Is(err, trade.ErrNotOwned):
		return protocol.ErrInvalidTrade
	case errors.Is(err, trade.ErrExpired):
		return protocol.ErrTradeExpired
	case errors.Is(err, unbox.ErrEmptyCase):
		return protocol.ErrItemNotFound
	case errors.Is(err, errBadPayload):
		return protocol.ErrInvalidRequest
	default:
		return protocol.ErrDatabaseError
	}
}

var errBadPayload = errors.New("dispatch: malformed request payload")

func splitFields(payload []byte, n int) ([]string, error) {
	parts := strings.SplitN(string(payload), ":", n)
	if len(parts) != n {
		return nil, errBadPayload
	}
	return parts, nil
}

func parseInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errBadPayload
	}
	return v, nil
}

func parseFloat64(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errBadPayload
	}
	return v, nil
}
