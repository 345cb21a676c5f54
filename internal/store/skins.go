package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Rarity is a skin's catalog rarity tier, ascending order.
type Rarity string

const (
	RarityConsumer   Rarity = "Consumer"
	RarityIndustrial Rarity = "Industrial"
	RarityMilSpec    Rarity = "Mil-Spec"
	RarityRestricted Rarity = "Restricted"
	RarityClassified Rarity = "Classified"
	RarityCovert     Rarity = "Covert"
	RarityContraband Rarity = "Contraband"
)

// SkinDefinition is the immutable catalog row behind an instance.
type SkinDefinition struct {
	ID        int64
	Name      string
	Weapon    string
	Rarity    Rarity
	BasePrice float64
}

// CaseDefinition is a purchasable case: a name, a price, and a set of
// skin definitions it can drop.
type CaseDefinition struct {
	ID    int64
	Name  string
	Price float64
}

// SkinInstance is the only mutable item entity: one minted, owned skin.
type SkinInstance struct {
	ID           int64
	DefinitionID int64
	Rarity       Rarity
	Wear         float64
	PatternSeed  int
	StatTrak     bool
	OwnerID      int64
	AcquiredAt   time.Time
	Tradable     bool
}

// GetCaseDefinition loads a case by id.
func (s *Store) GetCaseDefinition(caseID int64) (*CaseDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c CaseDefinition
	err := s.db.QueryRow(`SELECT id, name, price FROM case_definitions WHERE id = ?`, caseID).
		Scan(&c.ID, &c.Name, &c.Price)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return &c, nil
}

// ListCaseDefinitions returns every purchasable case.
func (s *Store) ListCaseDefinitions() ([]*CaseDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, price FROM case_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []*CaseDefinition
	for rows.Next() {
		var c CaseDefinition
		if err := rows.Scan(&c.ID, &c.Name, &c.Price); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CaseDefinitionsByRarity returns the skin definitions a case can drop at
// a given rarity.
func (s *Store) CaseDefinitionsByRarity(caseID int64, rarity Rarity) ([]*SkinDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT sd.id, sd.name, sd.weapon, sd.rarity, sd.base_price
		FROM case_contents cc
		JOIN skin_definitions sd ON sd.id = cc.definition_id
		WHERE cc.case_id = ? AND sd.rarity = ?`, caseID, string(rarity))
	if err != nil {
		return nil, fmt.Errorf("list case definitions by rarity: %w", err)
	}
	defer rows.Close()

	return scanDefinitions(rows)
}

// CaseRarities returns the distinct set of rarities present in a case.
func (s *Store) CaseRarities(caseID int64) ([]Rarity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT sd.rarity
		FROM case_contents cc
		JOIN skin_definitions sd ON sd.id = cc.definition_id
		WHERE cc.case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case rarities: %w", err)
	}
	defer rows.Close()

	var out []Rarity
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan rarity: %w", err)
		}
		out = append(out, Rarity(r))
	}
	return out, rows.Err()
}

func scanDefinitions(rows *sql.Rows) ([]*SkinDefinition, error) {
	var out []*SkinDefinition
	for rows.Next() {
		var d SkinDefinition
		var rarity string
		if err := rows.Scan(&d.ID, &d.Name, &d.Weapon, &rarity, &d.BasePrice); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		d.Rarity = Rarity(rarity)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// GetSkinDefinition loads a catalog row by id.
func (s *Store) GetSkinDefinition(definitionID int64) (*SkinDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d SkinDefinition
	var rarity string
	err := s.db.QueryRow(
		`SELECT id, name, weapon, rarity, base_price FROM skin_definitions WHERE id = ?`, definitionID,
	).Scan(&d.ID, &d.Name, &d.Weapon, &rarity, &d.BasePrice)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skin definition: %w", err)
	}
	d.Rarity = Rarity(rarity)
	return &d, nil
}

// GetSkinInstance loads a minted instance by id.
func (s *Store) GetSkinInstance(instanceID int64) (*SkinInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanInstance(s.db.QueryRow(instanceSelectQuery+` WHERE id = ?`, instanceID))
}

const instanceSelectQuery = `
	SELECT id, definition_id, rarity, wear, pattern_seed, is_stattrak, owner_id, acquired_at, tradable
	FROM skin_instances`

func scanInstance(row *sql.Row) (*SkinInstance, error) {
	var inst SkinInstance
	var rarity string
	var acquiredAt int64
	var stattrak, tradable int

	err := row.Scan(&inst.ID, &inst.DefinitionID, &rarity, &inst.Wear, &inst.PatternSeed,
		&stattrak, &inst.OwnerID, &acquiredAt, &tradable)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}

	inst.Rarity = Rarity(rarity)
	inst.StatTrak = stattrak != 0
	inst.AcquiredAt = time.Unix(acquiredAt, 0)
	inst.Tradable = tradable != 0
	return &inst, nil
}

// MintInstanceTx inserts a newly rolled instance and its inventory row
// inside an existing transaction. Returns the new instance id.
func MintInstanceTx(tx *sql.Tx, inst *SkinInstance) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO skin_instances
			(definition_id, rarity, wear, pattern_seed, is_stattrak, owner_id, acquired_at, tradable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.DefinitionID, string(inst.Rarity), inst.Wear, inst.PatternSeed,
		boolToInt(inst.StatTrak), inst.OwnerID, inst.AcquiredAt.Unix(), boolToInt(inst.Tradable))
	if err != nil {
		return 0, fmt.Errorf("mint instance: %w", err)
	}

	instanceID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("mint instance id: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO inventory (user_id, instance_id) VALUES (?, ?)`, inst.OwnerID, instanceID); err != nil {
		return 0, fmt.Errorf("insert inventory row: %w", err)
	}

	return instanceID, nil
}

// GetInventory returns every instance a user owns.
func (s *Store) GetInventory(userID int64) ([]*SkinInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(instanceSelectQuery+` WHERE owner_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	defer rows.Close()

	var out []*SkinInstance
	for rows.Next() {
		var inst SkinInstance
		var rarity string
		var acquiredAt int64
		var stattrak, tradable int
		if err := rows.Scan(&inst.ID, &inst.DefinitionID, &rarity, &inst.Wear, &inst.PatternSeed,
			&stattrak, &inst.OwnerID, &acquiredAt, &tradable); err != nil {
			return nil, fmt.Errorf("scan inventory instance: %w", err)
		}
		inst.Rarity = Rarity(rarity)
		inst.StatTrak = stattrak != 0
		inst.AcquiredAt = time.Unix(acquiredAt, 0)
		inst.Tradable = tradable != 0
		out = append(out, &inst)
	}
	return out, rows.Err()
}

// TransferOwnershipTx reassigns an instance's owner and moves its
// inventory row, inside an existing transaction. The UPDATE is scoped
// to fromUserID still being the current owner: if the instance was
// sold out from under the expected owner between validation and
// commit (a market sale racing a trade accept, say), this returns
// ErrConflict instead of silently reassigning someone else's item.
func TransferOwnershipTx(tx *sql.Tx, instanceID, fromUserID, toUserID int64) error {
	res, err := tx.Exec(`UPDATE skin_instances SET owner_id = ? WHERE id = ? AND owner_id = ?`, toUserID, instanceID, fromUserID)
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transfer ownership rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	if _, err := tx.Exec(`DELETE FROM inventory WHERE user_id = ? AND instance_id = ?`, fromUserID, instanceID); err != nil {
		return fmt.Errorf("remove inventory row: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO inventory (user_id, instance_id) VALUES (?, ?)`, toUserID, instanceID); err != nil {
		return fmt.Errorf("insert inventory row: %w", err)
	}
	return nil
}

// SetTradeLockTx applies or clears an instance's trade lock inside an
// existing transaction, resetting acquired_at as the lock clock.
func SetTradeLockTx(tx *sql.Tx, instanceID int64, tradable bool, lockClock time.Time) error {
	_, err := tx.Exec(`UPDATE skin_instances SET tradable = ?, acquired_at = ? WHERE id = ?`,
		boolToInt(tradable), lockClock.Unix(), instanceID)
	if err != nil {
		return fmt.Errorf("set trade lock: %w", err)
	}
	return nil
}

// UnlockExpiredInstances clears the trade lock on every instance whose
// lock has outlived lockDuration, returning the count unlocked.
func (s *Store) UnlockExpiredInstances(lockDuration time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-lockDuration).Unix()
	res, err := s.db.Exec(`UPDATE skin_instances SET tradable = 1 WHERE tradable = 0 AND acquired_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("unlock expired instances: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
