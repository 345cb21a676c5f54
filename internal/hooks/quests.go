// Package hooks orchestrates the side-effect systems fired by the core
// operations: quest progress, achievement unlocks, login streaks, chat
// persistence, and reports. Grounded on
// original_source/src/server/quests.c and achievements.c — reward and
// target constants taken from original_source/include/quests.h and
// achievements.h.
package hooks

import (
	"fmt"

	"github.com/klingon-exchange/klingon-v2/internal/broadcast"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// Quest keys, matching the reference server's QuestType enum.
const (
	QuestFirstSteps     = "first_steps"
	QuestMarketExplorer = "market_explorer"
	QuestLuckyGambler   = "lucky_gambler"
	QuestProfitMaker    = "profit_maker"
	QuestSocialTrader   = "social_trader"
)

// Quest targets and cash rewards.
const (
	QuestTargetFirstSteps     = 3
	QuestTargetMarketExplorer = 5
	QuestTargetLuckyGambler   = 5
	QuestTargetProfitMaker    = 50.0
	QuestTargetSocialTrader   = 10

	QuestRewardFirstSteps     = 15.0
	QuestRewardMarketExplorer = 10.0
	QuestRewardLuckyGambler   = 25.0
	QuestRewardProfitMaker    = 30.0
	QuestRewardSocialTrader   = 50.0
)

// Achievement keys, matching the reference server's AchievementType enum.
const (
	AchievementFirstTrade = "first_trade"
	AchievementFirstKnife = "first_knife"
	AchievementProfit1000 = "profit_1000"
	Achievement100Trades  = "100_trades"
)

// Achievement rewards.
const (
	AchievementRewardFirstTrade = 20.0
	AchievementRewardFirstKnife = 500.0
	AchievementRewardProfit1000 = 100.0
	AchievementReward100Trades  = 200.0
)

// questTargets maps a quest key to the progress value that completes it.
var questTargets = map[string]float64{
	QuestFirstSteps:     QuestTargetFirstSteps,
	QuestMarketExplorer: QuestTargetMarketExplorer,
	QuestLuckyGambler:   QuestTargetLuckyGambler,
	QuestProfitMaker:    QuestTargetProfitMaker,
	QuestSocialTrader:   QuestTargetSocialTrader,
}

// questRewards maps a quest key to its cash reward.
var questRewards = map[string]float64{
	QuestFirstSteps:     QuestRewardFirstSteps,
	QuestMarketExplorer: QuestRewardMarketExplorer,
	QuestLuckyGambler:   QuestRewardLuckyGambler,
	QuestProfitMaker:    QuestRewardProfitMaker,
	QuestSocialTrader:   QuestRewardSocialTrader,
}

// achievementRewards maps an achievement key to its cash reward.
var achievementRewards = map[string]float64{
	AchievementFirstTrade: AchievementRewardFirstTrade,
	AchievementFirstKnife: AchievementRewardFirstKnife,
	AchievementProfit1000: AchievementRewardProfit1000,
	Achievement100Trades:  AchievementReward100Trades,
}

// Hooks bundles the store-backed side-effect systems used by the game
// operations (unbox, trade, market).
type Hooks struct {
	store *store.Store
	hub   *broadcast.WSHub // optional observer feed; nil is fine
}

// New returns a Hooks bound to s.
func New(s *store.Store) *Hooks {
	return &Hooks{store: s}
}

// AttachHub wires an observer WebSocket hub so chat lines, rare drops,
// and moderation warnings are also fanned out to connected observers.
func (h *Hooks) AttachHub(hub *broadcast.WSHub) {
	h.hub = hub
}

// NotifyRareUnbox fans a Covert/Contraband drop out to the observer hub
// as a structured event, independent of the chat-log system message.
func (h *Hooks) NotifyRareUnbox(userID int64, rarity, skinName string, price float64) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(broadcast.EventRareUnbox, map[string]interface{}{
		"user_id": userID,
		"rarity":  rarity,
		"skin":    skinName,
		"price":   price,
	})
}

// BumpQuest advances a user's progress on a named quest by delta,
// returning its new state. Unknown quest keys are a programmer error.
func (h *Hooks) BumpQuest(userID int64, key string, delta float64) (*store.Quest, error) {
	target, ok := questTargets[key]
	if !ok {
		return nil, fmt.Errorf("bump quest: unknown quest key %q", key)
	}
	return h.store.UpdateQuestProgress(userID, key, delta, target)
}

// UnlockAchievement grants an achievement the first time it's earned.
// Returns true only if this call performed the unlock.
func (h *Hooks) UnlockAchievement(userID int64, key string) (bool, error) {
	return h.store.UnlockAchievement(userID, key)
}

// ClaimQuestReward pays out a completed, unclaimed quest's cash reward.
func (h *Hooks) ClaimQuestReward(userID int64, key string) (float64, error) {
	reward, ok := questRewards[key]
	if !ok {
		return 0, fmt.Errorf("claim quest reward: unknown quest key %q", key)
	}
	if err := h.store.ClaimQuestReward(userID, key, reward); err != nil {
		return 0, err
	}
	return reward, nil
}

// ClaimAchievementReward pays out an unlocked, unclaimed achievement's
// cash reward.
func (h *Hooks) ClaimAchievementReward(userID int64, key string) (float64, error) {
	reward, ok := achievementRewards[key]
	if !ok {
		return 0, fmt.Errorf("claim achievement reward: unknown achievement key %q", key)
	}
	if err := h.store.ClaimAchievementReward(userID, key, reward); err != nil {
		return 0, err
	}
	return reward, nil
}
