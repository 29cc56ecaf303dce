package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// VariableService is the variable store: it owns definition lifecycle and
// the per-chat stack/replace value operations.
type VariableService struct {
	store  storage.StateStore
	suites *SuiteService

	// valueMu serializes every value get-modify-save window. The queue
	// worker and the HTTP handlers write the same (variable, chat) blobs
	// concurrently.
	valueMu sync.Mutex
}

// NewVariableService creates a variable service. The suite service is used
// to keep referential integrity when a definition is deleted; it may be nil
// in tests that don't exercise deletion cascades.
func NewVariableService(store storage.StateStore, suites *SuiteService) *VariableService {
	return &VariableService{store: store, suites: suites}
}

// Create validates and persists a new variable definition. Name and tag are
// checked for uniqueness against every other definition.
func (s *VariableService) Create(ctx context.Context, name, tag string, mode types.VariableMode) (*types.VariableDefinition, error) {
	if !types.IsValidVariableName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if tag == "" {
		return nil, ErrInvalidTag
	}
	if !types.IsValidMode(mode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err := s.checkUnique(ctx, name, tag, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	def := &types.VariableDefinition{
		ID:        uuid.NewString(),
		Name:      name,
		Tag:       tag,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveVariable(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Rename changes a definition's name. Name is the only mutable field after
// creation; tag and mode are fixed.
func (s *VariableService) Rename(ctx context.Context, id, newName string) error {
	if !types.IsValidVariableName(newName) {
		return fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	def, err := s.store.GetVariable(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkUnique(ctx, newName, "", id); err != nil {
		return err
	}
	def.Name = newName
	def.UpdatedAt = time.Now().UTC()
	return s.store.SaveVariable(ctx, def)
}

// Delete removes a definition and cascades: all its per-chat values are
// purged and its items are removed from every suite.
func (s *VariableService) Delete(ctx context.Context, id string) error {
	s.valueMu.Lock()
	if err := s.store.DeleteVariable(ctx, id); err != nil {
		s.valueMu.Unlock()
		return err
	}
	err := s.store.DeleteValuesForVariable(ctx, id)
	s.valueMu.Unlock()
	if err != nil {
		return err
	}
	if s.suites != nil {
		if err := s.suites.RemoveVariableFromAllSuites(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a definition by id.
func (s *VariableService) Get(ctx context.Context, id string) (*types.VariableDefinition, error) {
	return s.store.GetVariable(ctx, id)
}

// List returns all definitions.
func (s *VariableService) List(ctx context.Context) ([]*types.VariableDefinition, error) {
	return s.store.ListVariables(ctx)
}

// GetByName returns the definition whose macro name matches.
func (s *VariableService) GetByName(ctx context.Context, name string) (*types.VariableDefinition, error) {
	defs, err := s.store.ListVariables(ctx)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.Name == name {
			return def, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByTag returns the definition whose wire tag matches.
func (s *VariableService) GetByTag(ctx context.Context, tag string) (*types.VariableDefinition, error) {
	defs, err := s.store.ListVariables(ctx)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.Tag == tag {
			return def, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetValue returns the stored value blob for (variableID, chatID), creating
// an empty one (without persisting it) when none exists yet.
func (s *VariableService) GetValue(ctx context.Context, variableID, chatID string) (*types.VariableValue, error) {
	value, err := s.store.GetValue(ctx, variableID, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		def, derr := s.store.GetVariable(ctx, variableID)
		if derr != nil {
			return nil, derr
		}
		return types.NewVariableValue(variableID, chatID, def.Mode), nil
	}
	return value, err
}

// AddEntry appends a new stack entry with an incrementing id.
func (s *VariableService) AddEntry(ctx context.Context, variableID, chatID, content, floorRange string) (*types.Entry, error) {
	s.valueMu.Lock()
	defer s.valueMu.Unlock()

	value, err := s.GetValue(ctx, variableID, chatID)
	if err != nil {
		return nil, err
	}
	if value.Mode != types.ModeStack || value.Stack == nil {
		return nil, ErrWrongMode
	}

	entry := types.Entry{
		ID:         value.Stack.NextEntryID,
		Content:    content,
		FloorRange: floorRange,
		Timestamp:  time.Now().UTC(),
	}
	value.Stack.Entries = append(value.Stack.Entries, entry)
	value.Stack.NextEntryID++

	if err := s.store.SaveValue(ctx, value); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateEntry rewrites the content of a stack entry by id.
func (s *VariableService) UpdateEntry(ctx context.Context, variableID, chatID string, entryID int, content string) error {
	return s.mutateStack(ctx, variableID, chatID, func(sv *types.StackValue) error {
		for i := range sv.Entries {
			if sv.Entries[i].ID == entryID {
				sv.Entries[i].Content = content
				return nil
			}
		}
		return ErrEntryNotFound
	})
}

// DeleteEntry removes a stack entry by id.
func (s *VariableService) DeleteEntry(ctx context.Context, variableID, chatID string, entryID int) error {
	return s.mutateStack(ctx, variableID, chatID, func(sv *types.StackValue) error {
		for i := range sv.Entries {
			if sv.Entries[i].ID == entryID {
				sv.Entries = append(sv.Entries[:i], sv.Entries[i+1:]...)
				return nil
			}
		}
		return ErrEntryNotFound
	})
}

// ToggleVisibility flips the hidden flag of a stack entry by id.
func (s *VariableService) ToggleVisibility(ctx context.Context, variableID, chatID string, entryID int) error {
	return s.mutateStack(ctx, variableID, chatID, func(sv *types.StackValue) error {
		for i := range sv.Entries {
			if sv.Entries[i].ID == entryID {
				sv.Entries[i].Hidden = !sv.Entries[i].Hidden
				return nil
			}
		}
		return ErrEntryNotFound
	})
}

// ReorderEntries rearranges a stack value to match newIDOrder. The order
// must be a permutation of the exact existing id set (same size, same
// members) or the call is rejected and the state left unchanged.
func (s *VariableService) ReorderEntries(ctx context.Context, variableID, chatID string, newIDOrder []int) error {
	return s.mutateStack(ctx, variableID, chatID, func(sv *types.StackValue) error {
		if len(newIDOrder) != len(sv.Entries) {
			return ErrBadPermutation
		}
		byID := make(map[int]types.Entry, len(sv.Entries))
		for _, e := range sv.Entries {
			byID[e.ID] = e
		}
		reordered := make([]types.Entry, 0, len(newIDOrder))
		seen := make(map[int]bool, len(newIDOrder))
		for _, id := range newIDOrder {
			e, ok := byID[id]
			if !ok || seen[id] {
				return ErrBadPermutation
			}
			seen[id] = true
			reordered = append(reordered, e)
		}
		sv.Entries = reordered
		return nil
	})
}

// SetValue installs a new current value on a replace variable. The prior
// current value (when non-empty) is pushed onto the history first, and the
// history index is reset so the new value is authoritative.
func (s *VariableService) SetValue(ctx context.Context, variableID, chatID, content, floorRange string) error {
	return s.mutateReplace(ctx, variableID, chatID, func(rv *types.ReplaceValue) error {
		pushCurrent(rv)
		rv.CurrentValue = content
		rv.CurrentFloorRange = floorRange
		rv.HistoryIndex = -1
		return nil
	})
}

// NavigateHistory moves the history cursor. direction is "prev" (toward
// older values) or "next" (toward the current value). The call fails
// without mutating state when there is nowhere to move.
func (s *VariableService) NavigateHistory(ctx context.Context, variableID, chatID, direction string) (int, error) {
	newIndex := -1
	err := s.mutateReplace(ctx, variableID, chatID, func(rv *types.ReplaceValue) error {
		switch direction {
		case "prev":
			switch {
			case rv.HistoryIndex == -1 && len(rv.History) > 0:
				rv.HistoryIndex = len(rv.History) - 1
			case rv.HistoryIndex > 0:
				rv.HistoryIndex--
			default:
				return ErrHistoryBoundary
			}
		case "next":
			switch {
			case rv.HistoryIndex == -1:
				return ErrHistoryBoundary
			case rv.HistoryIndex == len(rv.History)-1:
				rv.HistoryIndex = -1
			default:
				rv.HistoryIndex++
			}
		default:
			return fmt.Errorf("%w: unknown direction %q", storage.ErrInvalidInput, direction)
		}
		newIndex = rv.HistoryIndex
		return nil
	})
	return newIndex, err
}

// ApplyHistoryVersion promotes history[index] to be the new current value.
// The previous current value (when non-empty) is pushed onto history first,
// the promoted entry is removed, and the cursor returns to current.
func (s *VariableService) ApplyHistoryVersion(ctx context.Context, variableID, chatID string, index int) error {
	return s.mutateReplace(ctx, variableID, chatID, func(rv *types.ReplaceValue) error {
		if index < 0 || index >= len(rv.History) {
			return ErrHistoryIndex
		}
		target := rv.History[index]
		rv.History = append(rv.History[:index], rv.History[index+1:]...)
		pushCurrent(rv)
		rv.CurrentValue = target.Content
		rv.CurrentFloorRange = target.FloorRange
		rv.HistoryIndex = -1
		return nil
	})
}

// GetCurrentDisplayValue returns whichever of current/history the history
// cursor addresses. Missing values display as empty, not as an error.
func (s *VariableService) GetCurrentDisplayValue(ctx context.Context, variableID, chatID string) (string, error) {
	value, err := s.GetValue(ctx, variableID, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return value.DisplayValue(), nil
}

// checkUnique rejects a name or tag that collides with any definition other
// than excludeID. Empty name/tag arguments skip that check.
func (s *VariableService) checkUnique(ctx context.Context, name, tag, excludeID string) error {
	defs, err := s.store.ListVariables(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.ID == excludeID {
			continue
		}
		if name != "" && def.Name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		if tag != "" && def.Tag == tag {
			return fmt.Errorf("%w: %q", ErrDuplicateTag, tag)
		}
	}
	return nil
}

func (s *VariableService) mutateStack(ctx context.Context, variableID, chatID string, fn func(*types.StackValue) error) error {
	s.valueMu.Lock()
	defer s.valueMu.Unlock()

	value, err := s.GetValue(ctx, variableID, chatID)
	if err != nil {
		return err
	}
	if value.Mode != types.ModeStack || value.Stack == nil {
		return ErrWrongMode
	}
	if err := fn(value.Stack); err != nil {
		return err
	}
	return s.store.SaveValue(ctx, value)
}

func (s *VariableService) mutateReplace(ctx context.Context, variableID, chatID string, fn func(*types.ReplaceValue) error) error {
	s.valueMu.Lock()
	defer s.valueMu.Unlock()

	value, err := s.GetValue(ctx, variableID, chatID)
	if err != nil {
		return err
	}
	if value.Mode != types.ModeReplace || value.Replace == nil {
		return ErrWrongMode
	}
	if err := fn(value.Replace); err != nil {
		return err
	}
	return s.store.SaveValue(ctx, value)
}

// pushCurrent appends the current value to history when non-empty.
func pushCurrent(rv *types.ReplaceValue) {
	if rv.CurrentValue == "" {
		return
	}
	if rv.NextEntryID == 0 {
		// Values persisted before NextEntryID existed deserialize as 0.
		rv.NextEntryID = 1
	}
	rv.History = append(rv.History, types.Entry{
		ID:         rv.NextEntryID,
		Content:    rv.CurrentValue,
		FloorRange: rv.CurrentFloorRange,
		Timestamp:  time.Now().UTC(),
	})
	rv.NextEntryID++
}
