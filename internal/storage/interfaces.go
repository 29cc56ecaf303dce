// Package storage provides the persistence interfaces for Loreline state:
// variable definitions, per-chat variable values, suites, interval trigger
// counters, and settings.
//
// The interface is deliberately dumb key/value persistence. All domain
// rules (uniqueness, permutation checks, history navigation) live in
// internal/services; backends only durably store blobs in a format-stable
// JSON shape.
package storage

import (
	"context"

	"github.com/scrypster/loreline/pkg/types"
)

// StateStore persists all durable Loreline state. Implementations must be
// safe for concurrent use.
type StateStore interface {
	// SaveVariable creates or updates a variable definition (upsert).
	SaveVariable(ctx context.Context, def *types.VariableDefinition) error

	// GetVariable retrieves a definition by id.
	// Returns ErrNotFound if it doesn't exist.
	GetVariable(ctx context.Context, id string) (*types.VariableDefinition, error)

	// ListVariables returns all definitions ordered by creation time.
	ListVariables(ctx context.Context) ([]*types.VariableDefinition, error)

	// DeleteVariable removes a definition by id.
	// Returns ErrNotFound if it doesn't exist.
	DeleteVariable(ctx context.Context, id string) error

	// SaveValue creates or updates a per-(variable, chat) value blob.
	SaveValue(ctx context.Context, value *types.VariableValue) error

	// GetValue retrieves the value blob for (variableID, chatID).
	// Returns ErrNotFound if no value has been stored yet.
	GetValue(ctx context.Context, variableID, chatID string) (*types.VariableValue, error)

	// ListValuesForChat returns all value blobs stored for one chat.
	ListValuesForChat(ctx context.Context, chatID string) ([]*types.VariableValue, error)

	// DeleteValuesForVariable purges every chat's values for a variable.
	DeleteValuesForVariable(ctx context.Context, variableID string) error

	// SaveSuite creates or updates a suite (upsert).
	SaveSuite(ctx context.Context, suite *types.Suite) error

	// GetSuite retrieves a suite by id.
	// Returns ErrNotFound if it doesn't exist.
	GetSuite(ctx context.Context, id string) (*types.Suite, error)

	// ListSuites returns all suites ordered by creation time.
	ListSuites(ctx context.Context) ([]*types.Suite, error)

	// DeleteSuite removes a suite by id.
	// Returns ErrNotFound if it doesn't exist.
	DeleteSuite(ctx context.Context, id string) error

	// GetCounter returns the interval trigger counter for (suiteID, chatID).
	// Returns 0 (not an error) when no counter has been stored yet.
	GetCounter(ctx context.Context, suiteID, chatID string) (int, error)

	// SetCounter stores the interval trigger counter for (suiteID, chatID).
	SetCounter(ctx context.Context, suiteID, chatID string, count int) error

	// DeleteCountersForSuite removes all counters belonging to a suite.
	DeleteCountersForSuite(ctx context.Context, suiteID string) error

	// GetSetting retrieves a settings value by key.
	// Returns ErrNotFound if the key does not exist.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting writes a settings key/value pair (upsert).
	SetSetting(ctx context.Context, key, value string) error

	// Close releases any resources held by the store.
	Close() error
}

// Settings keys owned by this system.
const (
	// SettingActiveSuite holds the active suite id.
	SettingActiveSuite = "active_suite_id"

	// SettingSnapshotMode holds the global snapshot-mode default
	// ("true"/"false"). Suites may override it per enqueued task.
	SettingSnapshotMode = "snapshot_mode"
)
