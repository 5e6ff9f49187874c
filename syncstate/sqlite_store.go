package syncstate

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists AccountState as one JSON blob per account, the
// persistence shape described in SPEC_FULL.md §3. It does not attempt to
// normalize the sync-state maps into relational columns: the maps are
// opaque to everything except the engine, and a blob column avoids a
// migration every time a new map is added to AccountState.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("syncstate: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("syncstate: pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS account_sync_state (
		account_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("syncstate: migrating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns a fresh AccountState if accountID has no stored row.
func (s *SQLiteStore) Load(accountID string) (*AccountState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state_json FROM account_sync_state WHERE account_id = ?`, accountID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return NewAccountState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncstate: loading state for %q: %w", accountID, err)
	}

	state := NewAccountState()
	if err := json.Unmarshal([]byte(stateJSON), state); err != nil {
		return nil, fmt.Errorf("syncstate: decoding state for %q: %w", accountID, err)
	}
	return state, nil
}

// Save upserts state under accountID.
func (s *SQLiteStore) Save(accountID string, state *AccountState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("syncstate: encoding state for %q: %w", accountID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO account_sync_state (account_id, state_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET state_json = excluded.state_json, updated_at = CURRENT_TIMESTAMP
	`, accountID, string(blob))
	if err != nil {
		return fmt.Errorf("syncstate: saving state for %q: %w", accountID, err)
	}
	return nil
}
