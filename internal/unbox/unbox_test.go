package unbox

import (
	"os"
	"testing"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, int64, int64) {
	t.Helper()
	dir, err := os.MkdirTemp("", "klingoserver-unbox-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	userID, err := s.CreateUser("frank", "hash", 1000.0)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	caseID := seedCase(t, s)
	return New(s, hooks.New(s)), s, userID, caseID
}

// seedCase inserts a minimal case with one skin at each rarity the
// unbox roll can produce, so tests exercise the full fallthrough table.
func seedCase(t *testing.T, s *store.Store) int64 {
	t.Helper()
	db := s.DB()

	res, err := db.Exec(`INSERT INTO case_definitions (name, price) VALUES (?, ?)`, "Test Case", 5.0)
	if err != nil {
		t.Fatalf("insert case: %v", err)
	}
	caseID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("case id: %v", err)
	}

	rarities := []store.Rarity{
		store.RarityMilSpec, store.RarityRestricted, store.RarityClassified,
		store.RarityCovert, store.RarityContraband,
	}
	for i, r := range rarities {
		res, err := db.Exec(`INSERT INTO skin_definitions (name, weapon, rarity, base_price) VALUES (?, ?, ?, ?)`,
			"Skin", "Knife", string(r), 100.0+float64(i))
		if err != nil {
			t.Fatalf("insert definition: %v", err)
		}
		defID, err := res.LastInsertId()
		if err != nil {
			t.Fatalf("definition id: %v", err)
		}
		if _, err := db.Exec(`INSERT INTO case_contents (case_id, definition_id) VALUES (?, ?)`, caseID, defID); err != nil {
			t.Fatalf("insert case content: %v", err)
		}
	}

	return caseID
}

func TestOpenMintsTradableInstance(t *testing.T) {
	e, s, userID, caseID := newTestEngine(t)

	result, err := e.Open(userID, caseID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !result.Instance.Tradable {
		t.Error("expected minted instance to be tradable immediately")
	}
	if result.Instance.PatternSeed < 0 || result.Instance.PatternSeed > 999 {
		t.Errorf("pattern seed out of range: %d", result.Instance.PatternSeed)
	}
	if result.Instance.Wear < 0 || result.Instance.Wear > 1 {
		t.Errorf("wear out of range: %v", result.Instance.Wear)
	}

	inv, err := s.GetInventory(userID)
	if err != nil {
		t.Fatalf("GetInventory() error = %v", err)
	}
	if len(inv) != 1 {
		t.Fatalf("expected 1 inventory item, got %d", len(inv))
	}
}

func TestOpenDebitsBalanceByPricePlusKeyFee(t *testing.T) {
	e, s, userID, caseID := newTestEngine(t)

	before, err := s.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}

	result, err := e.Open(userID, caseID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	after, err := s.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}

	wantBalance := before.Balance - result.TotalCost
	if after.Balance != wantBalance {
		t.Errorf("expected balance %v after open, got %v", wantBalance, after.Balance)
	}
	if result.TotalCost != 5.0+KeyPrice {
		t.Errorf("expected total cost %v, got %v", 5.0+KeyPrice, result.TotalCost)
	}
}

func TestOpenInsufficientFundsLeavesNoInstance(t *testing.T) {
	e, s, _, caseID := newTestEngine(t)

	poorID, err := s.CreateUser("poor", "hash", 1.0)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if _, err := e.Open(poorID, caseID); err == nil {
		t.Fatal("expected insufficient-funds error")
	}

	inv, err := s.GetInventory(poorID)
	if err != nil {
		t.Fatalf("GetInventory() error = %v", err)
	}
	if len(inv) != 0 {
		t.Errorf("expected no instance minted on failed open, got %d", len(inv))
	}

	user, err := s.GetUser(poorID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Balance != 1.0 {
		t.Errorf("expected balance untouched at 1.0, got %v", user.Balance)
	}
}

func TestOpenUnknownCase(t *testing.T) {
	e, _, userID, _ := newTestEngine(t)

	if _, err := e.Open(userID, 99999); err == nil {
		t.Error("expected error opening a nonexistent case")
	}
}

func TestRollRarityFallsThroughToAvailableTier(t *testing.T) {
	// With only Mil-Spec stocked, every roll must land there.
	for i := 0; i < 50; i++ {
		r, err := rollRarity([]store.Rarity{store.RarityMilSpec})
		if err != nil {
			t.Fatalf("rollRarity() error = %v", err)
		}
		if r != store.RarityMilSpec {
			t.Fatalf("expected Mil-Spec fallthrough, got %s", r)
		}
	}
}

func TestWearMultiplierBands(t *testing.T) {
	cases := []struct {
		wear float64
		want float64
	}{
		{0.00, 1.00},
		{0.069, 1.00},
		{0.07, 0.92},
		{0.36, 0.78},
		{0.44, 0.65},
		{0.99, 0.52},
	}
	for _, c := range cases {
		if got := wearMultiplier(c.wear); got != c.want {
			t.Errorf("wearMultiplier(%v) = %v, want %v", c.wear, got, c.want)
		}
	}
}
