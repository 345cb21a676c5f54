// Package store provides the trading server's persistent storage over
// SQLite. Every exported method is safe for concurrent use; writers are
// additionally serialized by SQLite itself (a single connection, WAL
// mode), and the handful of multi-statement operations that must be
// atomic use a *sql.Tx rather than manual compensating writes.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors returned by store methods. Callers compare with
// errors.Is; the dispatch layer maps these onto the wire protocol's
// closed error-code set.
var (
	ErrNotFound         = errors.New("store: not found")
	ErrAlreadyExists    = errors.New("store: already exists")
	ErrInsufficientFund = errors.New("store: insufficient funds")
	ErrConflict         = errors.New("store: conflicting state")
)

// Store wraps a SQLite connection for the trading server's schema.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New opens (and if necessary creates) the trading server's database
// under cfg.DataDir.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "klingoserver.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite only supports one writer; a single pooled connection avoids
	// SQLITE_BUSY churn under the worker pool's concurrent handlers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection, for components (such as
// the hooks package) that need to compose their own statements against
// tables this package doesn't otherwise expose accessors for.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		balance REAL NOT NULL DEFAULT 0,
		is_banned INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_login INTEGER
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		login_time INTEGER NOT NULL,
		last_activity INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS skin_definitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		weapon TEXT NOT NULL,
		rarity TEXT NOT NULL,
		base_price REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_definitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_contents (
		case_id INTEGER NOT NULL,
		definition_id INTEGER NOT NULL,
		PRIMARY KEY (case_id, definition_id),
		FOREIGN KEY (case_id) REFERENCES case_definitions(id),
		FOREIGN KEY (definition_id) REFERENCES skin_definitions(id)
	);

	CREATE TABLE IF NOT EXISTS skin_instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		definition_id INTEGER NOT NULL,
		rarity TEXT NOT NULL,
		wear REAL NOT NULL,
		pattern_seed INTEGER NOT NULL,
		is_stattrak INTEGER NOT NULL DEFAULT 0,
		owner_id INTEGER NOT NULL,
		acquired_at INTEGER NOT NULL,
		tradable INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (definition_id) REFERENCES skin_definitions(id),
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_instances_owner ON skin_instances(owner_id);

	CREATE TABLE IF NOT EXISTS inventory (
		user_id INTEGER NOT NULL,
		instance_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, instance_id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (instance_id) REFERENCES skin_instances(id)
	);

	CREATE TABLE IF NOT EXISTS market_listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id INTEGER NOT NULL,
		seller_id INTEGER NOT NULL,
		price REAL NOT NULL,
		listed_at INTEGER NOT NULL,
		is_sold INTEGER NOT NULL DEFAULT 0,
		sold_at INTEGER,
		buyer_id INTEGER,
		FOREIGN KEY (instance_id) REFERENCES skin_instances(id),
		FOREIGN KEY (seller_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_open ON market_listings(is_sold);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_user_id INTEGER NOT NULL,
		to_user_id INTEGER NOT NULL,
		offered_cash REAL NOT NULL DEFAULT 0,
		requested_cash REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		FOREIGN KEY (from_user_id) REFERENCES users(id),
		FOREIGN KEY (to_user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_expires ON trades(expires_at);

	-- Normalized child table for the items on each side of a trade offer,
	-- rather than a JSON blob column: lets ownership validation join
	-- directly against skin_instances instead of decoding application-side.
	CREATE TABLE IF NOT EXISTS trade_items (
		trade_id INTEGER NOT NULL,
		side TEXT NOT NULL CHECK (side IN ('offered', 'requested')),
		instance_id INTEGER NOT NULL,
		PRIMARY KEY (trade_id, side, instance_id),
		FOREIGN KEY (trade_id) REFERENCES trades(id),
		FOREIGN KEY (instance_id) REFERENCES skin_instances(id)
	);

	CREATE TABLE IF NOT EXISTS transaction_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		log_type TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		details TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logs_user ON transaction_logs(user_id);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reporter_id INTEGER NOT NULL,
		reported_id INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (reporter_id) REFERENCES users(id),
		FOREIGN KEY (reported_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_reports_reported ON reports(reported_id);

	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		definition_id INTEGER NOT NULL,
		price REAL NOT NULL,
		recorded_at INTEGER NOT NULL,
		FOREIGN KEY (definition_id) REFERENCES skin_definitions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_def ON price_history(definition_id, recorded_at);

	CREATE TABLE IF NOT EXISTS quests (
		user_id INTEGER NOT NULL,
		quest_key TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		claimed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, quest_key),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS achievements (
		user_id INTEGER NOT NULL,
		achievement_key TEXT NOT NULL,
		unlocked_at INTEGER NOT NULL,
		claimed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, achievement_key),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS login_streaks (
		user_id INTEGER PRIMARY KEY,
		current_streak INTEGER NOT NULL DEFAULT 0,
		last_login_date INTEGER NOT NULL DEFAULT 0,
		last_reward_date INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		username TEXT NOT NULL,
		message TEXT NOT NULL,
		sent_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_sent ON chat_messages(sent_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
