package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// SuiteService is the suite registry: CRUD for suites and their items,
// trigger configuration, and the query surface used by the resolver and the
// trigger engine.
type SuiteService struct {
	store storage.StateStore
}

// NewSuiteService creates a suite service on top of the given store.
func NewSuiteService(store storage.StateStore) *SuiteService {
	return &SuiteService{store: store}
}

// Create persists a new suite with a manual trigger. The first suite
// created becomes the active suite.
func (s *SuiteService) Create(ctx context.Context, name string) (*types.Suite, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: suite name is required", storage.ErrInvalidInput)
	}
	suite := &types.Suite{
		ID:      uuid.NewString(),
		Name:    name,
		Enabled: true,
		Trigger: types.Trigger{Type: types.TriggerManual},
		Items:   []types.Item{},
	}
	if err := s.store.SaveSuite(ctx, suite); err != nil {
		return nil, err
	}
	if _, err := s.ActiveSuiteID(ctx); errors.Is(err, storage.ErrNotFound) {
		if err := s.store.SetSetting(ctx, storage.SettingActiveSuite, suite.ID); err != nil {
			return nil, err
		}
	}
	return suite, nil
}

// Get retrieves a suite by id.
func (s *SuiteService) Get(ctx context.Context, id string) (*types.Suite, error) {
	return s.store.GetSuite(ctx, id)
}

// List returns all suites.
func (s *SuiteService) List(ctx context.Context) ([]*types.Suite, error) {
	return s.store.ListSuites(ctx)
}

// Update persists modifications to an existing suite.
func (s *SuiteService) Update(ctx context.Context, suite *types.Suite) error {
	if suite == nil || suite.ID == "" {
		return fmt.Errorf("%w: suite with id is required", storage.ErrInvalidInput)
	}
	if _, err := s.store.GetSuite(ctx, suite.ID); err != nil {
		return err
	}
	return s.store.SaveSuite(ctx, suite)
}

// Delete removes a suite along with its trigger counters. Deleting the
// active suite activates an arbitrary remaining one, or leaves no active
// suite when the registry is empty.
func (s *SuiteService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteSuite(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteCountersForSuite(ctx, id); err != nil {
		return err
	}

	activeID, err := s.ActiveSuiteID(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if activeID != id {
		return nil
	}

	remaining, err := s.store.ListSuites(ctx)
	if err != nil {
		return err
	}
	next := ""
	if len(remaining) > 0 {
		next = remaining[0].ID
	}
	return s.store.SetSetting(ctx, storage.SettingActiveSuite, next)
}

// SetActive marks a suite as the active one.
func (s *SuiteService) SetActive(ctx context.Context, id string) error {
	if _, err := s.store.GetSuite(ctx, id); err != nil {
		return err
	}
	return s.store.SetSetting(ctx, storage.SettingActiveSuite, id)
}

// ActiveSuiteID returns the active suite id, or ErrNotFound when none is
// set.
func (s *SuiteService) ActiveSuiteID(ctx context.Context) (string, error) {
	id, err := s.store.GetSetting(ctx, storage.SettingActiveSuite)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", storage.ErrNotFound
	}
	return id, nil
}

// SetTrigger replaces a suite's trigger configuration.
func (s *SuiteService) SetTrigger(ctx context.Context, suiteID string, trigger types.Trigger) error {
	if !types.IsValidTriggerType(trigger.Type) {
		return fmt.Errorf("%w: unknown trigger type %q", storage.ErrInvalidInput, trigger.Type)
	}
	if trigger.Type == types.TriggerInterval && trigger.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", storage.ErrInvalidInput)
	}
	if trigger.Type == types.TriggerKeyword && len(trigger.Keywords) == 0 {
		return fmt.Errorf("%w: keyword trigger needs at least one keyword", storage.ErrInvalidInput)
	}
	return s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		suite.Trigger = trigger
		return nil
	})
}

// SetSnapshotMode sets or clears (nil) a suite's snapshot-mode override.
func (s *SuiteService) SetSnapshotMode(ctx context.Context, suiteID string, mode *bool) error {
	return s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		suite.SnapshotMode = mode
		return nil
	})
}

// GlobalSnapshotMode reads the global snapshot-mode default. Snapshot mode
// defaults to true when the setting has never been written.
func (s *SuiteService) GlobalSnapshotMode(ctx context.Context) bool {
	raw, err := s.store.GetSetting(ctx, storage.SettingSnapshotMode)
	if err != nil {
		return true
	}
	mode, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return mode
}

// SetGlobalSnapshotMode writes the global snapshot-mode default.
func (s *SuiteService) SetGlobalSnapshotMode(ctx context.Context, mode bool) error {
	return s.store.SetSetting(ctx, storage.SettingSnapshotMode, strconv.FormatBool(mode))
}

// SnapshotModeFor resolves the effective snapshot mode for a suite: its
// override when set, otherwise the global default.
func (s *SuiteService) SnapshotModeFor(ctx context.Context, suite *types.Suite) bool {
	if suite != nil && suite.SnapshotMode != nil {
		return *suite.SnapshotMode
	}
	return s.GlobalSnapshotMode(ctx)
}

// AddPromptItem appends a literal prompt item to a suite.
func (s *SuiteService) AddPromptItem(ctx context.Context, suiteID, name, content string) (*types.Item, error) {
	item := types.Item{
		Type:   types.ItemPrompt,
		ID:     uuid.NewString(),
		Prompt: &types.PromptItem{Name: name, Content: content, Enabled: true},
	}
	return s.appendItem(ctx, suiteID, item)
}

// AddChatContentItem appends a conversation-content selector to a suite.
func (s *SuiteService) AddChatContentItem(ctx context.Context, suiteID, name string, rangeCfg types.RangeConfig, excludeUser bool, regexCfg types.RegexConfig) (*types.Item, error) {
	item := types.Item{
		Type: types.ItemChatContent,
		ID:   uuid.NewString(),
		ChatContent: &types.ChatContentItem{
			Name:        name,
			Enabled:     true,
			Range:       rangeCfg,
			ExcludeUser: excludeUser,
			Regex:       regexCfg,
		},
	}
	return s.appendItem(ctx, suiteID, item)
}

// AddVariableItem appends a variable reference to a suite. A variable may
// appear at most once per suite; duplicates are rejected.
func (s *SuiteService) AddVariableItem(ctx context.Context, suiteID, variableID string) (*types.Item, error) {
	if _, err := s.store.GetVariable(ctx, variableID); err != nil {
		return nil, err
	}
	item := types.Item{
		Type:     types.ItemVariable,
		ID:       variableID,
		Variable: &types.VariableItem{Enabled: true},
	}
	var added *types.Item
	err := s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		for _, existing := range suite.Items {
			if existing.Type == types.ItemVariable && existing.ID == variableID {
				return fmt.Errorf("%w: variable %s already referenced", ErrDuplicateItem, variableID)
			}
		}
		suite.Items = append(suite.Items, item)
		added = &suite.Items[len(suite.Items)-1]
		return nil
	})
	return added, err
}

// AddCharPromptItem appends a character-bound reference. The three fixed
// subtypes allow at most one item per (charID, subType); worldbook items
// are distinguished by entryUID.
func (s *SuiteService) AddCharPromptItem(ctx context.Context, suiteID, charID string, subType types.CharPromptSubType, entryUID string) (*types.Item, error) {
	item := types.Item{
		Type: types.ItemCharPrompt,
		ID:   uuid.NewString(),
		CharPrompt: &types.CharPromptItem{
			CharID:   charID,
			SubType:  subType,
			EntryUID: entryUID,
			Enabled:  true,
		},
	}
	var added *types.Item
	err := s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		for _, existing := range suite.Items {
			if existing.Type != types.ItemCharPrompt || existing.CharPrompt == nil {
				continue
			}
			cp := existing.CharPrompt
			if cp.CharID != charID || cp.SubType != subType {
				continue
			}
			if types.IsFixedCharSubType(subType) {
				return fmt.Errorf("%w: %s already present for character %s", ErrDuplicateItem, subType, charID)
			}
			if subType == types.CharWorldbook && cp.EntryUID == entryUID {
				return fmt.Errorf("%w: worldbook entry %s already present", ErrDuplicateItem, entryUID)
			}
		}
		suite.Items = append(suite.Items, item)
		added = &suite.Items[len(suite.Items)-1]
		return nil
	})
	return added, err
}

// RemoveItem deletes an item from a suite by id.
func (s *SuiteService) RemoveItem(ctx context.Context, suiteID, itemID string) error {
	return s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		for i := range suite.Items {
			if suite.Items[i].ID == itemID {
				suite.Items = append(suite.Items[:i], suite.Items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

// SetItemEnabled toggles an item on or off without removing it.
func (s *SuiteService) SetItemEnabled(ctx context.Context, suiteID, itemID string, enabled bool) error {
	return s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		for i := range suite.Items {
			if suite.Items[i].ID != itemID {
				continue
			}
			item := &suite.Items[i]
			switch item.Type {
			case types.ItemPrompt:
				item.Prompt.Enabled = enabled
			case types.ItemChatContent:
				item.ChatContent.Enabled = enabled
			case types.ItemVariable:
				item.Variable.Enabled = enabled
			case types.ItemCharPrompt:
				item.CharPrompt.Enabled = enabled
			}
			return nil
		}
		return ErrItemNotFound
	})
}

// ReorderItems rearranges a suite's items to match newIDOrder. The order
// must reference every current item exactly once.
func (s *SuiteService) ReorderItems(ctx context.Context, suiteID string, newIDOrder []string) error {
	return s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		if len(newIDOrder) != len(suite.Items) {
			return ErrReorderMismatch
		}
		byID := make(map[string]types.Item, len(suite.Items))
		for _, item := range suite.Items {
			byID[item.ID] = item
		}
		reordered := make([]types.Item, 0, len(newIDOrder))
		seen := make(map[string]bool, len(newIDOrder))
		for _, id := range newIDOrder {
			item, ok := byID[id]
			if !ok || seen[id] {
				return ErrReorderMismatch
			}
			seen[id] = true
			reordered = append(reordered, item)
		}
		suite.Items = reordered
		return nil
	})
}

// GetVisibleContentItems returns the suite's enabled prompt and
// chat-content items in their original order. Variable and char-prompt
// items never contribute literal text and are excluded.
func (s *SuiteService) GetVisibleContentItems(ctx context.Context, suiteID string) ([]types.Item, error) {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	visible := make([]types.Item, 0, len(suite.Items))
	for _, item := range suite.Items {
		switch item.Type {
		case types.ItemPrompt, types.ItemChatContent:
			if item.IsEnabled() {
				visible = append(visible, item)
			}
		case types.ItemVariable, types.ItemCharPrompt:
			// Not literal text; requested through other channels.
		}
	}
	return visible, nil
}

// GetEnabledVariableIDs returns the ids of the suite's enabled variable
// items in order. These declare which tags the model must be asked to
// produce.
func (s *SuiteService) GetEnabledVariableIDs(ctx context.Context, suiteID string) ([]string, error) {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(suite.Items))
	for _, item := range suite.Items {
		if item.Type == types.ItemVariable && item.IsEnabled() {
			ids = append(ids, item.ID)
		}
	}
	return ids, nil
}

// RemoveVariableFromAllSuites drops every reference to a deleted variable,
// keeping referential integrity.
func (s *SuiteService) RemoveVariableFromAllSuites(ctx context.Context, variableID string) error {
	suites, err := s.store.ListSuites(ctx)
	if err != nil {
		return err
	}
	for _, suite := range suites {
		kept := suite.Items[:0]
		removed := false
		for _, item := range suite.Items {
			if item.Type == types.ItemVariable && item.ID == variableID {
				removed = true
				continue
			}
			kept = append(kept, item)
		}
		if removed {
			suite.Items = kept
			if err := s.store.SaveSuite(ctx, suite); err != nil {
				return err
			}
		}
	}
	return nil
}

// appendItem adds an item to the end of a suite's item list.
func (s *SuiteService) appendItem(ctx context.Context, suiteID string, item types.Item) (*types.Item, error) {
	var added *types.Item
	err := s.mutate(ctx, suiteID, func(suite *types.Suite) error {
		suite.Items = append(suite.Items, item)
		added = &suite.Items[len(suite.Items)-1]
		return nil
	})
	return added, err
}

// mutate loads a suite, applies fn, and saves it back when fn succeeds.
func (s *SuiteService) mutate(ctx context.Context, suiteID string, fn func(*types.Suite) error) error {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return err
	}
	if err := fn(suite); err != nil {
		return err
	}
	return s.store.SaveSuite(ctx, suite)
}
