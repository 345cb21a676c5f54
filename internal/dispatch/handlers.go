package dispatch

import (
	"fmt"
	"strings"

	"github.com/klingon-exchange/klingon-v2/internal/protocol"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// handleRegister: "username:password" -> "user_id".
func (d *Dispatcher) handleRegister(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	userID, err := d.auth.Register(fields[0], fields[1])
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgRegisterOK, Payload: []byte(fmt.Sprintf("%d", userID))}, nil
}

// handleLogin: "username:password" -> "token:user_id".
func (d *Dispatcher) handleLogin(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	token, userID, err := d.auth.Login(fields[0], fields[1])
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgLoginOK, Payload: []byte(fmt.Sprintf("%s:%d", token, userID))}, nil
}

// handleLogout: "token" -> empty OK.
func (d *Dispatcher) handleLogout(payload []byte) (Response, error) {
	token := string(payload)
	if err := d.auth.Logout(token); err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgLogout}, nil
}

// handleMarketList: "token:instance_id:price" -> encoded MarketListing.
func (d *Dispatcher) handleMarketList(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 3)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	instanceID, err := parseInt64(fields[1])
	if err != nil {
		return Response{}, err
	}
	price, err := parseFloat64(fields[2])
	if err != nil {
		return Response{}, err
	}
	listing, err := d.market.List(sess.UserID, instanceID, price)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgMarketListOK, Payload: []byte(encodeListing(listing))}, nil
}

// handleMarketBuy: "token:listing_id" -> encoded MarketListing.
func (d *Dispatcher) handleMarketBuy(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	listingID, err := parseInt64(fields[1])
	if err != nil {
		return Response{}, err
	}
	listing, err := d.market.Buy(sess.UserID, listingID)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgMarketListOK, Payload: []byte(encodeListing(listing))}, nil
}

// handleMarketSell is an alias wire entry point for listing an item;
// payload shape matches handleMarketList ("token:instance_id:price").
func (d *Dispatcher) handleMarketSell(payload []byte) (Response, error) {
	return d.handleMarketList(payload)
}

// handleMarketDelist: "token:listing_id" -> empty OK.
func (d *Dispatcher) handleMarketDelist(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	listingID, err := parseInt64(fields[1])
	if err != nil {
		return Response{}, err
	}
	if err := d.market.Delist(sess.UserID, listingID); err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgMarketDelist}, nil
}

// handleMarketSearch: "token:term" (empty term lists every open
// listing) -> newline-separated encoded MarketListings.
func (d *Dispatcher) handleMarketSearch(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	if _, err := d.auth.ValidateSession(fields[0]); err != nil {
		return Response{}, err
	}

	var listings []*store.MarketListing
	if fields[1] == "" {
		listings, err = d.market.ListOpen()
	} else {
		listings, err = d.market.Search(fields[1])
	}
	if err != nil {
		return Response{}, err
	}

	rows := make([]string, len(listings))
	for i, l := range listings {
		rows[i] = encodeListing(l)
	}
	return Response{MsgType: protocol.MsgMarketListOK, Payload: []byte(strings.Join(rows, "\n"))}, nil
}

func encodeListing(l *store.MarketListing) string {
	return fmt.Sprintf("%d:%d:%d:%.2f:%v", l.ID, l.InstanceID, l.SellerID, l.Price, l.IsSold)
}

// handleTradeSend: "token:to_user_id:offered_items:requested_items:offered_cash:requested_cash",
// where the item lists are comma-separated instance ids (empty string
// for none) -> "trade_id".
func (d *Dispatcher) handleTradeSend(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 6)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	toUserID, err := parseInt64(fields[1])
	if err != nil {
		return Response{}, err
	}
	offeredItems, err := parseIDList(fields[2])
	if err != nil {
		return Response{}, err
	}
	requestedItems, err := parseIDList(fields[3])
	if err != nil {
		return Response{}, err
	}
	// At most 10 instance ids per side of an offer.
	if len(offeredItems) > 10 || len(requestedItems) > 10 {
		return Response{}, errBadPayload
	}
	offeredCash, err := parseFloat64(fields[4])
	if err != nil {
		return Response{}, err
	}
	requestedCash, err := parseFloat64(fields[5])
	if err != nil {
		return Response{}, err
	}

	offer, err := d.trade.Send(sess.UserID, toUserID, offeredItems, requestedItems, offeredCash, requestedCash)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgTradeNotify, Payload: []byte(fmt.Sprintf("%d", offer.ID))}, nil
}

// handleTradeAccept: "token:trade_id" -> encoded TradeOffer.
func (d *Dispatcher) handleTradeAccept(payload []byte) (Response, error) {
	sess, tradeID, err := d.sessionAndID(payload)
	if err != nil {
		return Response{}, err
	}
	offer, err := d.trade.Accept(sess.UserID, tradeID)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgTradeCompleted, Payload: []byte(encodeTrade(offer))}, nil
}

// handleTradeDecline: "token:trade_id" -> empty OK.
func (d *Dispatcher) handleTradeDecline(payload []byte) (Response, error) {
	sess, tradeID, err := d.sessionAndID(payload)
	if err != nil {
		return Response{}, err
	}
	if err := d.trade.Decline(sess.UserID, tradeID); err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgTradeDecline}, nil
}

// handleTradeCancel: "token:trade_id" -> empty OK.
func (d *Dispatcher) handleTradeCancel(payload []byte) (Response, error) {
	sess, tradeID, err := d.sessionAndID(payload)
	if err != nil {
		return Response{}, err
	}
	if err := d.trade.Cancel(sess.UserID, tradeID); err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgTradeCancel}, nil
}

// handleTradeList: "token" -> newline-separated encoded TradeOffers.
func (d *Dispatcher) handleTradeList(payload []byte) (Response, error) {
	sess, err := d.auth.ValidateSession(string(payload))
	if err != nil {
		return Response{}, err
	}
	offers, err := d.trade.ListUserTrades(sess.UserID)
	if err != nil {
		return Response{}, err
	}
	rows := make([]string, len(offers))
	for i, o := range offers {
		rows[i] = encodeTrade(o)
	}
	return Response{MsgType: protocol.MsgTradeListOK, Payload: []byte(strings.Join(rows, "\n"))}, nil
}

func encodeTrade(o *store.TradeOffer) string {
	return fmt.Sprintf("%d:%d:%d:%s:%.2f:%.2f", o.ID, o.FromUserID, o.ToUserID, o.Status, o.OfferedCash, o.RequestedCash)
}

func (d *Dispatcher) sessionAndID(payload []byte) (*store.Session, int64, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return nil, 0, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return nil, 0, err
	}
	id, err := parseInt64(fields[1])
	if err != nil {
		return nil, 0, err
	}
	return sess, id, nil
}

// handleInventory: "token" -> newline-separated encoded SkinInstances.
func (d *Dispatcher) handleInventory(payload []byte) (Response, error) {
	sess, err := d.auth.ValidateSession(string(payload))
	if err != nil {
		return Response{}, err
	}
	items, err := d.store.GetInventory(sess.UserID)
	if err != nil {
		return Response{}, err
	}
	rows := make([]string, len(items))
	for i, inst := range items {
		rows[i] = encodeInstance(inst)
	}
	return Response{MsgType: protocol.MsgInventoryOK, Payload: []byte(strings.Join(rows, "\n"))}, nil
}

func encodeInstance(inst *store.SkinInstance) string {
	return fmt.Sprintf("%d:%d:%s:%.10f:%d:%v:%v", inst.ID, inst.DefinitionID, inst.Rarity, inst.Wear, inst.PatternSeed, inst.StatTrak, inst.Tradable)
}

// handleProfile: "token:user_id" (empty user_id means self) -> encoded User.
func (d *Dispatcher) handleProfile(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}

	targetID := sess.UserID
	if fields[1] != "" {
		targetID, err = parseInt64(fields[1])
		if err != nil {
			return Response{}, err
		}
	}
	user, err := d.store.GetUser(targetID)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgProfileOK, Payload: []byte(fmt.Sprintf("%d:%s:%.2f", user.ID, user.Username, user.Balance))}, nil
}

// handleSkinDetail: "token:definition_id" -> encoded SkinDefinition.
func (d *Dispatcher) handleSkinDetail(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	if _, err := d.auth.ValidateSession(fields[0]); err != nil {
		return Response{}, err
	}
	defID, err := parseInt64(fields[1])
	if err != nil {
		return Response{}, err
	}
	def, err := d.store.GetSkinDefinition(defID)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgSkinDetailOK, Payload: []byte(fmt.Sprintf("%d:%s:%s:%s:%.2f", def.ID, def.Name, def.Weapon, def.Rarity, def.BasePrice))}, nil
}

// handleUserSearch: "token:username" -> encoded User.
func (d *Dispatcher) handleUserSearch(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	if _, err := d.auth.ValidateSession(fields[0]); err != nil {
		return Response{}, err
	}
	user, err := d.store.GetUserByUsername(fields[1])
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgUserSearchOK, Payload: []byte(fmt.Sprintf("%d:%s:%.2f", user.ID, user.Username, user.Balance))}, nil
}

// handleUnbox: "token:case_id" -> encoded unbox.Result.
func (d *Dispatcher) handleUnbox(payload []byte) (Response, error) {
	sess, caseID, err := d.sessionAndID(payload)
	if err != nil {
		return Response{}, err
	}
	result, err := d.unbox.Open(sess.UserID, caseID)
	if err != nil {
		return Response{}, err
	}
	body := fmt.Sprintf("%d:%s:%.10f:%d:%v:%.2f:%.2f",
		result.Instance.ID, result.Definition.Name, result.Instance.Wear, result.Instance.PatternSeed,
		result.Instance.StatTrak, result.TotalCost, result.CurrentPrice)
	return Response{MsgType: protocol.MsgUnboxOK, Payload: []byte(body)}, nil
}

// handleCaseList: "token" -> newline-separated encoded CaseDefinitions.
func (d *Dispatcher) handleCaseList(payload []byte) (Response, error) {
	if _, err := d.auth.ValidateSession(string(payload)); err != nil {
		return Response{}, err
	}
	cases, err := d.store.ListCaseDefinitions()
	if err != nil {
		return Response{}, err
	}
	rows := make([]string, len(cases))
	for i, c := range cases {
		rows[i] = fmt.Sprintf("%d:%s:%.2f", c.ID, c.Name, c.Price)
	}
	return Response{MsgType: protocol.MsgCaseListOK, Payload: []byte(strings.Join(rows, "\n"))}, nil
}

// handleChat: "token:message" -> the same payload echoed back as
// MsgChat. hooks.SaveChatMessage persists the line and fans it out to
// the observer hub when one is attached.
func (d *Dispatcher) handleChat(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	user, err := d.store.GetUser(sess.UserID)
	if err != nil {
		return Response{}, err
	}
	if err := d.hooks.SaveChatMessage(sess.UserID, user.Username, fields[1]); err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgChat, Payload: payload}, nil
}

// handleQuestClaim: "token:quest_key" -> "reward".
func (d *Dispatcher) handleQuestClaim(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	reward, err := d.hooks.ClaimQuestReward(sess.UserID, fields[1])
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgQuestClaimOK, Payload: []byte(fmt.Sprintf("%.2f", reward))}, nil
}

// handleAchievementClaim: "token:achievement_key" -> "reward".
func (d *Dispatcher) handleAchievementClaim(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 2)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	reward, err := d.hooks.ClaimAchievementReward(sess.UserID, fields[1])
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgAchievementClaimOK, Payload: []byte(fmt.Sprintf("%.2f", reward))}, nil
}

// handleDailyRewardClaim: "token" -> "reward:streak_day".
func (d *Dispatcher) handleDailyRewardClaim(payload []byte) (Response, error) {
	sess, err := d.auth.ValidateSession(string(payload))
	if err != nil {
		return Response{}, err
	}
	reward, day, err := d.hooks.ClaimDailyReward(sess.UserID)
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgDailyRewardClaimOK, Payload: []byte(fmt.Sprintf("%.2f:%d", reward, day))}, nil
}

// handleReport: "token:reported_user_id:reason" -> "warn_triggered".
func (d *Dispatcher) handleReport(payload []byte) (Response, error) {
	fields, err := splitFields(payload, 3)
	if err != nil {
		return Response{}, err
	}
	sess, err := d.auth.ValidateSession(fields[0])
	if err != nil {
		return Response{}, err
	}
	reportedID, err := parseInt64(fields[1])
	if err != nil {
		return Response{}, err
	}
	triggered, err := d.hooks.FileReport(sess.UserID, reportedID, fields[2])
	if err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgReportOK, Payload: []byte(fmt.Sprintf("%v", triggered))}, nil
}

// handleHeartbeat is a no-op liveness check; touching the session is
// enough to keep it out of the idle timeout.
func (d *Dispatcher) handleHeartbeat(payload []byte) (Response, error) {
	if _, err := d.auth.ValidateSession(string(payload)); err != nil {
		return Response{}, err
	}
	return Response{MsgType: protocol.MsgHeartbeat}, nil
}

func parseIDList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, len(parts))
	for i, p := range parts {
		id, err := parseInt64(p)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
