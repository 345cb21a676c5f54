// Package unbox implements the case-opening engine: roll a rarity, pick
// a skin definition from that rarity pool, roll wear/StatTrak/pattern
// seed, and mint a new owned instance — all inside one transaction so a
// failure after the balance debit can never strand a paid-for case.
// Grounded line-for-line on original_source/src/server/unbox.c.
package unbox

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

// ErrEmptyCase is returned when a case has no skins in any rarity the
// roll could plausibly produce.
var ErrEmptyCase = errors.New("unbox: case has no skins")

// KeyPrice is the fixed overhead charged on top of a case's listed
// price to open it.
const KeyPrice = 2.50

// rarityOrder is the roll order: rarest checked first, each threshold
// matching original_source/src/server/unbox.c's roll_rarity ladder.
var rarityOrder = []struct {
	rarity    store.Rarity
	threshold float64 // roll below this percentage selects this tier
}{
	{store.RarityContraband, 0.26},
	{store.RarityCovert, 0.90},
	{store.RarityClassified, 4.10},
	{store.RarityRestricted, 20.08},
}

var rarityMultiplier = map[store.Rarity]float64{
	store.RarityConsumer:   0.10,
	store.RarityIndustrial: 0.15,
	store.RarityMilSpec:    0.30,
	store.RarityRestricted: 0.50,
	store.RarityClassified: 0.75,
	store.RarityCovert:     1.00,
	store.RarityContraband: 1.50,
}

type wearBand struct {
	min, max   float64
	multiplier float64
}

var wearBands = []wearBand{
	{0.00, 0.07, 1.00}, // Factory New
	{0.07, 0.15, 0.92}, // Minimal Wear
	{0.15, 0.37, 0.78}, // Field-Tested
	{0.37, 0.45, 0.65}, // Well-Worn
	{0.45, 1.00, 0.52}, // Battle-Scarred
}

// Result is the outcome of a successful unbox.
type Result struct {
	Instance      *store.SkinInstance
	Definition    *store.SkinDefinition
	CurrentPrice  float64
	TotalCost     float64
	Profit        float64 // positive if CurrentPrice > TotalCost
	RareBroadcast bool    // Contraband or Covert: chat-worthy drop
}

// Engine opens cases against a store, firing quest/achievement/chat
// hooks on the outcomes the reference server tracks.
type Engine struct {
	store *store.Store
	hooks *hooks.Hooks
}

// New returns an Engine.
func New(s *store.Store, h *hooks.Hooks) *Engine {
	return &Engine{store: s, hooks: h}
}

// randFloat01 returns a uniform float64 in [0, 1) from a
// cryptographically random source.
func randFloat01() (float64, error) {
	const resolution = 1 << 53
	n, err := rand.Int(rand.Reader, big.NewInt(resolution))
	if err != nil {
		return 0, fmt.Errorf("roll random float: %w", err)
	}
	return float64(n.Int64()) / float64(resolution), nil
}

// randIntn returns a uniform int in [0, n).
func randIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("roll random int: %w", err)
	}
	return int(v.Int64()), nil
}

// rollWear draws the CS2-style uniform integer I in [0, 2^31-1] and
// returns I / (2^31-1), truncated to 10 decimal places.
func rollWear() (float64, error) {
	const maxInt = 2147483647 // 2^31 - 1
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("roll wear: %w", err)
	}
	raw := binary.BigEndian.Uint32(buf[:]) % (maxInt + 1)
	wear := float64(raw) / float64(maxInt)
	return float64(int64(wear*1e10)) / 1e10, nil
}

func wearMultiplier(wear float64) float64 {
	for _, b := range wearBands {
		if wear >= b.min && wear < b.max {
			return b.multiplier
		}
	}
	return wearBands[len(wearBands)-1].multiplier // 1.00 upper bound (Battle-Scarred)
}

// rollRarity picks a rarity from the ones actually present in the
// case, falling through to the next lower tier when the rolled tier
// isn't stocked, and finally to Mil-Spec or the first available tier.
// The roll is never renormalized over just the available tiers.
func rollRarity(available []store.Rarity) (store.Rarity, error) {
	present := make(map[store.Rarity]bool, len(available))
	for _, r := range available {
		present[r] = true
	}

	roll, err := randFloat01()
	if err != nil {
		return "", err
	}
	rollPct := roll * 100.0

	for _, tier := range rarityOrder {
		if rollPct < tier.threshold && present[tier.rarity] {
			return tier.rarity, nil
		}
	}

	if present[store.RarityMilSpec] {
		return store.RarityMilSpec, nil
	}
	if len(available) == 0 {
		return "", ErrEmptyCase
	}
	return available[0], nil
}

// Open spends case's price plus KeyPrice from userID's balance and
// mints a new instance in one transaction. It never leaves a debited,
// unminted state: any failure after the debit rolls the whole
// transaction back.
func (e *Engine) Open(userID, caseID int64) (*Result, error) {
	caseDef, err := e.store.GetCaseDefinition(caseID)
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}

	available, err := e.store.CaseRarities(caseID)
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}
	if len(available) == 0 {
		return nil, ErrEmptyCase
	}

	totalCost := caseDef.Price + KeyPrice

	rolledRarity, err := rollRarity(available)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.CaseDefinitionsByRarity(caseID, rolledRarity)
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyCase
	}
	idx, err := randIntn(len(candidates))
	if err != nil {
		return nil, err
	}
	def := candidates[idx]

	wear, err := rollWear()
	if err != nil {
		return nil, err
	}

	statTrak := false
	if def.Rarity != store.RarityContraband {
		roll, err := randFloat01()
		if err != nil {
			return nil, err
		}
		statTrak = roll <= 0.10
	}

	patternSeed, err := randIntn(1000)
	if err != nil {
		return nil, err
	}

	currentPrice := def.BasePrice * rarityMultiplier[def.Rarity] * wearMultiplier(wear)

	tx, err := e.store.DB().Begin()
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}
	defer tx.Rollback()

	if err := store.AdjustBalance(tx, userID, -totalCost); err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}

	instance := &store.SkinInstance{
		DefinitionID: def.ID,
		Rarity:       def.Rarity,
		Wear:         wear,
		PatternSeed:  patternSeed,
		StatTrak:     statTrak,
		OwnerID:      userID,
		AcquiredAt:   time.Now(),
		Tradable:     true, // minted items are never trade-locked
	}
	instanceID, err := store.MintInstanceTx(tx, instance)
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}
	instance.ID = instanceID

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}

	profit := currentPrice - totalCost

	result := &Result{
		Instance:      instance,
		Definition:    def,
		CurrentPrice:  currentPrice,
		TotalCost:     totalCost,
		Profit:        profit,
		RareBroadcast: def.Rarity == store.RarityContraband || def.Rarity == store.RarityCovert,
	}

	e.fireHooks(userID, caseDef, result)
	return result, nil
}

func (e *Engine) fireHooks(userID int64, caseDef *store.CaseDefinition, result *Result) {
	if e.hooks == nil {
		return
	}

	details := fmt.Sprintf("Unboxed case %d (%s) -> instance %d (def %d, rarity %s, wear %.10f, pattern %d, stattrak %v, cost $%.2f, value $%.2f)",
		caseDef.ID, caseDef.Name, result.Instance.ID, result.Definition.ID, result.Definition.Rarity,
		result.Instance.Wear, result.Instance.PatternSeed, result.Instance.StatTrak, result.TotalCost, result.CurrentPrice)
	_ = e.hooks.LogTransaction("unbox", userID, details)

	_, _ = e.hooks.BumpQuest(userID, hooks.QuestLuckyGambler, 1)
	if result.Profit > 0 {
		_, _ = e.hooks.BumpQuest(userID, hooks.QuestProfitMaker, result.Profit)
	}
	if result.Definition.Rarity == store.RarityContraband {
		_, _ = e.hooks.UnlockAchievement(userID, hooks.AchievementFirstKnife)
	}

	if result.RareBroadcast {
		msg := fmt.Sprintf("RARE DROP: user %d unboxed %s %s (price $%.2f)", userID, result.Definition.Rarity, result.Definition.Name, result.CurrentPrice)
		_ = e.hooks.SaveSystemMessage(msg)
		e.hooks.NotifyRareUnbox(userID, string(result.Definition.Rarity), result.Definition.Name, result.CurrentPrice)
	}
}
