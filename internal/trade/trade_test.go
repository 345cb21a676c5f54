package trade

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "klingoserver-trade-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return New(s, hooks.New(s)), s
}

func seedInstance(t *testing.T, s *store.Store, ownerID int64, name string) int64 {
	t.Helper()
	db := s.DB()
	res, err := db.Exec(`INSERT INTO skin_definitions (name, weapon, rarity, base_price) VALUES (?, ?, ?, ?)`,
		name, "AK-47", string(store.RarityCovert), 180.0)
	if err != nil {
		t.Fatalf("insert definition: %v", err)
	}
	defID, _ := res.LastInsertId()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	instanceID, err := store.MintInstanceTx(tx, &store.SkinInstance{
		DefinitionID: defID,
		Rarity:       store.RarityCovert,
		OwnerID:      ownerID,
		Tradable:     true,
	})
	if err != nil {
		t.Fatalf("mint instance: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return instanceID
}

func TestSendRejectsSelfTrade(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)

	if _, err := e.Send(aliceID, aliceID, nil, nil, 10, 0); !errors.Is(err, ErrSelfTrade) {
		t.Errorf("expected ErrSelfTrade, got %v", err)
	}
}

func TestSendRejectsEmptyOffer(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)

	if _, err := e.Send(aliceID, bobID, nil, nil, 0, 0); !errors.Is(err, ErrEmptyOffer) {
		t.Errorf("expected ErrEmptyOffer, got %v", err)
	}
}

func TestSendRejectsUnownedOfferedItem(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)
	bobsInstance := seedInstance(t, s, bobID, "Bob's Knife")

	if _, err := e.Send(aliceID, bobID, []int64{bobsInstance}, nil, 0, 0); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned, got %v", err)
	}
}

func TestAcceptSwapsItemsAndCash(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)
	aliceItem := seedInstance(t, s, aliceID, "Alice's Knife")
	bobItem := seedInstance(t, s, bobID, "Bob's Glove")

	offer, err := e.Send(aliceID, bobID, []int64{aliceItem}, []int64{bobItem}, 10, 5)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	accepted, err := e.Accept(bobID, offer.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if accepted.Status != store.TradeStatusAccepted {
		t.Errorf("expected status accepted, got %s", accepted.Status)
	}

	aliceInst, err := s.GetSkinInstance(bobItem)
	if err != nil {
		t.Fatalf("GetSkinInstance() error = %v", err)
	}
	if aliceInst.OwnerID != aliceID {
		t.Errorf("expected bob's item now owned by alice, got owner %d", aliceInst.OwnerID)
	}
	bobInst, err := s.GetSkinInstance(aliceItem)
	if err != nil {
		t.Fatalf("GetSkinInstance() error = %v", err)
	}
	if bobInst.OwnerID != bobID {
		t.Errorf("expected alice's item now owned by bob, got owner %d", bobInst.OwnerID)
	}

	alice, err := s.GetUser(aliceID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	// alice paid 10 offered, received 5 requested: net -5
	if alice.Balance != 95.0 {
		t.Errorf("expected alice balance 95.0, got %v", alice.Balance)
	}
}

func TestAcceptRejectsItemSoldSinceSend(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)
	carolID, _ := s.CreateUser("carol", "hash", 100.0)
	aliceItem := seedInstance(t, s, aliceID, "Alice's Knife")

	offer, err := e.Send(aliceID, bobID, []int64{aliceItem}, nil, 0, 0)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Simulate the offered item changing hands (e.g. a market sale)
	// after the offer was sent but before bob accepts it.
	if _, err := s.DB().Exec(`UPDATE skin_instances SET owner_id = ? WHERE id = ?`, carolID, aliceItem); err != nil {
		t.Fatalf("reassign owner: %v", err)
	}

	if _, err := e.Accept(bobID, offer.ID); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict when the offered item changed owners, got %v", err)
	}

	inst, err := s.GetSkinInstance(aliceItem)
	if err != nil {
		t.Fatalf("GetSkinInstance() error = %v", err)
	}
	if inst.OwnerID != carolID {
		t.Errorf("expected item to remain with carol, got owner %d", inst.OwnerID)
	}

	rows, err := s.DB().Query(`SELECT COUNT(*) FROM inventory WHERE instance_id = ?`, aliceItem)
	if err != nil {
		t.Fatalf("query inventory: %v", err)
	}
	defer rows.Close()
	var count int
	if rows.Next() {
		rows.Scan(&count)
	}
	if count != 1 {
		t.Errorf("expected exactly one inventory row for the instance, got %d", count)
	}
}

func TestAcceptOnlyByToUser(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)

	offer, err := e.Send(aliceID, bobID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, err := e.Accept(aliceID, offer.ID); !errors.Is(err, ErrNotParty) {
		t.Errorf("expected ErrNotParty when sender tries to accept, got %v", err)
	}
}

func TestAcceptExpiredFlipsStatus(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)

	offer, err := e.Send(aliceID, bobID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Force expiry by backdating expires_at directly.
	past := time.Now().Add(-time.Minute).Unix()
	if _, err := s.DB().Exec(`UPDATE trades SET expires_at = ? WHERE id = ?`, past, offer.ID); err != nil {
		t.Fatalf("backdate trade: %v", err)
	}

	if _, err := e.Accept(bobID, offer.ID); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}

	reloaded, err := s.GetTradeOffer(offer.ID)
	if err != nil {
		t.Fatalf("GetTradeOffer() error = %v", err)
	}
	if reloaded.Status != store.TradeStatusExpired {
		t.Errorf("expected status expired after failed accept, got %s", reloaded.Status)
	}
}

func TestDeclineAndCancelAreOneShot(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)

	offer, err := e.Send(aliceID, bobID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := e.Decline(bobID, offer.ID); err != nil {
		t.Fatalf("Decline() error = %v", err)
	}
	if err := e.Decline(bobID, offer.ID); err == nil {
		t.Error("expected declining a declined offer to fail")
	}

	offer2, err := e.Send(aliceID, bobID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := e.Cancel(aliceID, offer2.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := e.Accept(bobID, offer2.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending accepting a cancelled offer, got %v", err)
	}
}

func TestReapExpiresOverdueOffers(t *testing.T) {
	e, s := newTestEngine(t)
	aliceID, _ := s.CreateUser("alice", "hash", 100.0)
	bobID, _ := s.CreateUser("bob", "hash", 100.0)

	offer, err := e.Send(aliceID, bobID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	past := time.Now().Add(-time.Minute).Unix()
	if _, err := s.DB().Exec(`UPDATE trades SET expires_at = ? WHERE id = ?`, past, offer.ID); err != nil {
		t.Fatalf("backdate trade: %v", err)
	}

	count, err := e.Reap()
	if err != nil {
		t.Fatalf("Reap() error = %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 offer reaped, got %d", count)
	}
}
