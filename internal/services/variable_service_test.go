package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/internal/storage/sqlite"
	"github.com/scrypster/loreline/pkg/types"
)

const testChat = "chat-1"

func newTestServices(t *testing.T) (*VariableService, *SuiteService) {
	t.Helper()
	store, err := sqlite.NewStateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	suites := NewSuiteService(store)
	vars := NewVariableService(store, suites)
	return vars, suites
}

func TestCreateVariableValidation(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "summary", "Summary", types.ModeStack)
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "summary", def.Name)

	// Duplicate name rejected
	_, err = vars.Create(ctx, "summary", "Other", types.ModeReplace)
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Duplicate tag rejected
	_, err = vars.Create(ctx, "other", "Summary", types.ModeReplace)
	assert.ErrorIs(t, err, ErrDuplicateTag)

	// Invalid names rejected
	_, err = vars.Create(ctx, "", "Empty", types.ModeStack)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = vars.Create(ctx, "bad name", "Spaced", types.ModeStack)
	assert.ErrorIs(t, err, ErrInvalidName)

	// Non-ASCII identifier characters are allowed
	_, err = vars.Create(ctx, "要約", "Yoyaku", types.ModeStack)
	assert.NoError(t, err)

	// Invalid mode rejected
	_, err = vars.Create(ctx, "badmode", "BadMode", types.VariableMode("weird"))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRenameVariable(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	a, err := vars.Create(ctx, "first", "First", types.ModeStack)
	require.NoError(t, err)
	_, err = vars.Create(ctx, "second", "Second", types.ModeStack)
	require.NoError(t, err)

	// Rename into a colliding name fails
	err = vars.Rename(ctx, a.ID, "second")
	assert.ErrorIs(t, err, ErrDuplicateName)

	require.NoError(t, vars.Rename(ctx, a.ID, "renamed"))
	got, err := vars.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	// Tag is immutable through rename
	assert.Equal(t, "First", got.Tag)
}

func TestStackEntryOperations(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "notes", "Notes", types.ModeStack)
	require.NoError(t, err)

	e1, err := vars.AddEntry(ctx, def.ID, testChat, "first", "1-5")
	require.NoError(t, err)
	e2, err := vars.AddEntry(ctx, def.ID, testChat, "second", "6-10")
	require.NoError(t, err)
	assert.Equal(t, 1, e1.ID)
	assert.Equal(t, 2, e2.ID)

	require.NoError(t, vars.UpdateEntry(ctx, def.ID, testChat, e1.ID, "first edited"))
	assert.ErrorIs(t, vars.UpdateEntry(ctx, def.ID, testChat, 99, "x"), ErrEntryNotFound)

	require.NoError(t, vars.ToggleVisibility(ctx, def.ID, testChat, e2.ID))
	value, err := vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	visible := value.VisibleEntries()
	require.Len(t, visible, 1)
	assert.Equal(t, "first edited", visible[0].Content)

	require.NoError(t, vars.DeleteEntry(ctx, def.ID, testChat, e1.ID))
	assert.ErrorIs(t, vars.DeleteEntry(ctx, def.ID, testChat, e1.ID), ErrEntryNotFound)

	// Ids keep incrementing after deletion
	e3, err := vars.AddEntry(ctx, def.ID, testChat, "third", "11")
	require.NoError(t, err)
	assert.Equal(t, 3, e3.ID)
}

func TestReorderEntriesPermutationCheck(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "ordered", "Ordered", types.ModeStack)
	require.NoError(t, err)
	for _, content := range []string{"a", "b", "c"} {
		_, err := vars.AddEntry(ctx, def.ID, testChat, content, "1")
		require.NoError(t, err)
	}

	// Valid permutation reorders without losing anything
	require.NoError(t, vars.ReorderEntries(ctx, def.ID, testChat, []int{3, 1, 2}))
	value, err := vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	contents := []string{}
	for _, e := range value.Stack.Entries {
		contents = append(contents, e.Content)
	}
	assert.Equal(t, []string{"c", "a", "b"}, contents)

	// Wrong size, missing id, duplicate id: all rejected, state unchanged
	for _, bad := range [][]int{{1, 2}, {1, 2, 4}, {1, 1, 2}, {1, 2, 3, 3}} {
		assert.ErrorIs(t, vars.ReorderEntries(ctx, def.ID, testChat, bad), ErrBadPermutation)
	}
	value, err = vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	after := []string{}
	for _, e := range value.Stack.Entries {
		after = append(after, e.Content)
	}
	assert.Equal(t, []string{"c", "a", "b"}, after)
}

func TestStackOpsRejectedOnReplaceVariable(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "state", "State", types.ModeReplace)
	require.NoError(t, err)

	_, err = vars.AddEntry(ctx, def.ID, testChat, "x", "1")
	assert.ErrorIs(t, err, ErrWrongMode)
	assert.ErrorIs(t, vars.ToggleVisibility(ctx, def.ID, testChat, 1), ErrWrongMode)
	assert.ErrorIs(t, vars.ReorderEntries(ctx, def.ID, testChat, []int{1}), ErrWrongMode)

	// And the converse: replace ops rejected on stack variables
	stackDef, err := vars.Create(ctx, "log", "Log", types.ModeStack)
	require.NoError(t, err)
	assert.ErrorIs(t, vars.SetValue(ctx, stackDef.ID, testChat, "x", "1"), ErrWrongMode)
	_, err = vars.NavigateHistory(ctx, stackDef.ID, testChat, "prev")
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestSetValuePushesHistory(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "mood", "Mood", types.ModeReplace)
	require.NoError(t, err)

	// First set: no prior value, history stays empty
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "calm", "1-3"))
	value, err := vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	assert.Empty(t, value.Replace.History)
	assert.Equal(t, -1, value.Replace.HistoryIndex)

	// Second set pushes exactly one history entry
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "tense", "4-6"))
	value, err = vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	require.Len(t, value.Replace.History, 1)
	assert.Equal(t, "calm", value.Replace.History[0].Content)
	assert.Equal(t, "tense", value.Replace.CurrentValue)
	assert.Equal(t, -1, value.Replace.HistoryIndex)
}

func TestNavigateHistoryBoundaries(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "scene", "Scene", types.ModeReplace)
	require.NoError(t, err)
	for _, v := range []string{"one", "two", "three"} {
		require.NoError(t, vars.SetValue(ctx, def.ID, testChat, v, "1"))
	}
	// history = [one, two], current = three

	// next from current fails without mutating
	_, err = vars.NavigateHistory(ctx, def.ID, testChat, "next")
	assert.ErrorIs(t, err, ErrHistoryBoundary)
	value, _ := vars.GetValue(ctx, def.ID, testChat)
	assert.Equal(t, -1, value.Replace.HistoryIndex)

	// prev from current lands on the most recent history item
	idx, err := vars.NavigateHistory(ctx, def.ID, testChat, "prev")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	display, err := vars.GetCurrentDisplayValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	assert.Equal(t, "two", display)

	// prev again reaches the oldest; one more fails
	idx, err = vars.NavigateHistory(ctx, def.ID, testChat, "prev")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, err = vars.NavigateHistory(ctx, def.ID, testChat, "prev")
	assert.ErrorIs(t, err, ErrHistoryBoundary)

	// next walks back to current
	idx, err = vars.NavigateHistory(ctx, def.ID, testChat, "next")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	idx, err = vars.NavigateHistory(ctx, def.ID, testChat, "next")
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	display, err = vars.GetCurrentDisplayValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	assert.Equal(t, "three", display)
}

func TestApplyHistoryVersion(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "plot", "Plot", types.ModeReplace)
	require.NoError(t, err)
	for _, v := range []string{"one", "two", "three"} {
		require.NoError(t, vars.SetValue(ctx, def.ID, testChat, v, "1"))
	}

	// Promote the oldest entry; the superseded current goes into history
	require.NoError(t, vars.ApplyHistoryVersion(ctx, def.ID, testChat, 0))
	value, err := vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	assert.Equal(t, "one", value.Replace.CurrentValue)
	assert.Equal(t, -1, value.Replace.HistoryIndex)
	// history was [one two], "one" moved out, "three" pushed in
	contents := []string{}
	for _, e := range value.Replace.History {
		contents = append(contents, e.Content)
	}
	assert.Equal(t, []string{"two", "three"}, contents)

	assert.ErrorIs(t, vars.ApplyHistoryVersion(ctx, def.ID, testChat, 5), ErrHistoryIndex)
}

func TestDeleteVariableCascades(t *testing.T) {
	vars, suites := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "doomed", "Doomed", types.ModeStack)
	require.NoError(t, err)
	_, err = vars.AddEntry(ctx, def.ID, testChat, "content", "1")
	require.NoError(t, err)

	suite, err := suites.Create(ctx, "Suite")
	require.NoError(t, err)
	_, err = suites.AddVariableItem(ctx, suite.ID, def.ID)
	require.NoError(t, err)

	require.NoError(t, vars.Delete(ctx, def.ID))

	_, err = vars.Get(ctx, def.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := suites.Get(ctx, suite.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)

	ids, err := suites.GetEnabledVariableIDs(ctx, suite.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConcurrentEntryWritesKeepUniqueIDs(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "notes", "Notes", types.ModeStack)
	require.NoError(t, err)

	// The engine worker and a user editing entries write the same value
	// blob at the same time. Every write must land and every id must be
	// issued exactly once.
	const writers = 25
	start := make(chan struct{})
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := vars.AddEntry(ctx, def.ID, testChat, fmt.Sprintf("entry %d", i), "1-2")
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	value, err := vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	require.Len(t, value.Stack.Entries, writers)
	assert.Equal(t, writers+1, value.Stack.NextEntryID)

	seen := make(map[int]bool, writers)
	for _, entry := range value.Stack.Entries {
		assert.False(t, seen[entry.ID], "entry id %d issued twice", entry.ID)
		seen[entry.ID] = true
	}
}

func TestConcurrentSetValuePreservesEveryHistoryPush(t *testing.T) {
	vars, _ := newTestServices(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "mood", "Mood", types.ModeReplace)
	require.NoError(t, err)
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "seed", "1"))

	const writers = 25
	start := make(chan struct{})
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs <- vars.SetValue(ctx, def.ID, testChat, fmt.Sprintf("value %d", i), "1-2")
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Each write pushes the value it superseded, so none of the writes
	// may overwrite another without a trace.
	value, err := vars.GetValue(ctx, def.ID, testChat)
	require.NoError(t, err)
	assert.Len(t, value.Replace.History, writers)
	assert.NotEmpty(t, value.Replace.CurrentValue)
}
