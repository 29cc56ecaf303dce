// Package sqlite implements storage.StateStore on SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// StateStore implements storage.StateStore using SQLite.
type StateStore struct {
	db *sql.DB
}

// NewStateStore opens a SQLite database, configures WAL mode, and creates
// the schema. Pass ":memory:" for an ephemeral store in tests.
func NewStateStore(dsn string) (*StateStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &StateStore{db: db}, nil
}

// GetDB exposes the underlying database connection for callers that need
// direct access (web handlers, tests).
func (s *StateStore) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// SaveVariable creates or updates a variable definition.
func (s *StateStore) SaveVariable(ctx context.Context, def *types.VariableDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: variable definition with id is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variables (id, name, tag, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, def.ID, def.Name, def.Tag, string(def.Mode), def.CreatedAt.UTC(), def.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to save variable %s: %w", def.ID, err)
	}
	return nil
}

// GetVariable retrieves a definition by id.
func (s *StateStore) GetVariable(ctx context.Context, id string) (*types.VariableDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tag, mode, created_at, updated_at FROM variables WHERE id = ?`, id)
	return scanVariable(row)
}

// ListVariables returns all definitions ordered by creation time.
func (s *StateStore) ListVariables(ctx context.Context) ([]*types.VariableDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tag, mode, created_at, updated_at FROM variables ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list variables: %w", err)
	}
	defer rows.Close()

	var defs []*types.VariableDefinition
	for rows.Next() {
		def, err := scanVariable(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteVariable removes a definition by id.
func (s *StateStore) DeleteVariable(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete variable %s: %w", id, err)
	}
	return requireAffected(res)
}

// SaveValue creates or updates a per-(variable, chat) value blob.
func (s *StateStore) SaveValue(ctx context.Context, value *types.VariableValue) error {
	if value == nil || value.VariableID == "" || value.ChatID == "" {
		return fmt.Errorf("%w: variable id and chat id are required", storage.ErrInvalidInput)
	}
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: failed to serialize value: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variable_values (variable_id, chat_id, mode, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(variable_id, chat_id) DO UPDATE SET
			mode = excluded.mode,
			value = excluded.value,
			updated_at = excluded.updated_at
	`, value.VariableID, value.ChatID, string(value.Mode), string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to save value %s/%s: %w", value.VariableID, value.ChatID, err)
	}
	return nil
}

// GetValue retrieves the value blob for (variableID, chatID).
func (s *StateStore) GetValue(ctx context.Context, variableID, chatID string) (*types.VariableValue, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM variable_values WHERE variable_id = ? AND chat_id = ?`,
		variableID, chatID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get value %s/%s: %w", variableID, chatID, err)
	}
	return unmarshalValue(blob)
}

// ListValuesForChat returns all value blobs stored for one chat.
func (s *StateStore) ListValuesForChat(ctx context.Context, chatID string) ([]*types.VariableValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM variable_values WHERE chat_id = ? ORDER BY variable_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list values for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var values []*types.VariableValue
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		value, err := unmarshalValue(blob)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

// DeleteValuesForVariable purges every chat's values for a variable.
func (s *StateStore) DeleteValuesForVariable(ctx context.Context, variableID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM variable_values WHERE variable_id = ?`, variableID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to purge values for variable %s: %w", variableID, err)
	}
	return nil
}

// SaveSuite creates or updates a suite.
func (s *StateStore) SaveSuite(ctx context.Context, suite *types.Suite) error {
	if suite == nil || suite.ID == "" {
		return fmt.Errorf("%w: suite with id is required", storage.ErrInvalidInput)
	}
	blob, err := json.Marshal(suite)
	if err != nil {
		return fmt.Errorf("sqlite: failed to serialize suite: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suites (id, definition, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			definition = excluded.definition,
			updated_at = excluded.updated_at
	`, suite.ID, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to save suite %s: %w", suite.ID, err)
	}
	return nil
}

// GetSuite retrieves a suite by id.
func (s *StateStore) GetSuite(ctx context.Context, id string) (*types.Suite, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM suites WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get suite %s: %w", id, err)
	}
	return unmarshalSuite(blob)
}

// ListSuites returns all suites ordered by creation time.
func (s *StateStore) ListSuites(ctx context.Context) ([]*types.Suite, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM suites ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list suites: %w", err)
	}
	defer rows.Close()

	var suites []*types.Suite
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		suite, err := unmarshalSuite(blob)
		if err != nil {
			return nil, err
		}
		suites = append(suites, suite)
	}
	return suites, rows.Err()
}

// DeleteSuite removes a suite by id.
func (s *StateStore) DeleteSuite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete suite %s: %w", id, err)
	}
	return requireAffected(res)
}

// GetCounter returns the interval trigger counter for (suiteID, chatID).
func (s *StateStore) GetCounter(ctx context.Context, suiteID, chatID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM message_counters WHERE suite_id = ? AND chat_id = ?`,
		suiteID, chatID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get counter %s/%s: %w", suiteID, chatID, err)
	}
	return count, nil
}

// SetCounter stores the interval trigger counter for (suiteID, chatID).
func (s *StateStore) SetCounter(ctx context.Context, suiteID, chatID string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_counters (suite_id, chat_id, count)
		VALUES (?, ?, ?)
		ON CONFLICT(suite_id, chat_id) DO UPDATE SET count = excluded.count
	`, suiteID, chatID, count)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set counter %s/%s: %w", suiteID, chatID, err)
	}
	return nil
}

// DeleteCountersForSuite removes all counters belonging to a suite.
func (s *StateStore) DeleteCountersForSuite(ctx context.Context, suiteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM message_counters WHERE suite_id = ?`, suiteID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete counters for suite %s: %w", suiteID, err)
	}
	return nil
}

// GetSetting retrieves a settings value by key.
func (s *StateStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a settings key/value pair.
func (s *StateStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set setting %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVariable(row rowScanner) (*types.VariableDefinition, error) {
	var def types.VariableDefinition
	var mode string
	err := row.Scan(&def.ID, &def.Name, &def.Tag, &mode, &def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan variable: %w", err)
	}
	def.Mode = types.VariableMode(mode)
	return &def, nil
}

func unmarshalValue(blob string) (*types.VariableValue, error) {
	var value types.VariableValue
	if err := json.Unmarshal([]byte(blob), &value); err != nil {
		return nil, fmt.Errorf("sqlite: failed to deserialize value: %w", err)
	}
	return &value, nil
}

func unmarshalSuite(blob string) (*types.Suite, error) {
	var suite types.Suite
	if err := json.Unmarshal([]byte(blob), &suite); err != nil {
		return nil, fmt.Errorf("sqlite: failed to deserialize suite: %w", err)
	}
	return &suite, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
