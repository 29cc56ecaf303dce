package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage/sqlite"
	"github.com/scrypster/loreline/pkg/types"
)

const testChat = "chat-1"

func newTestResolver(t *testing.T) (*Resolver, *services.VariableService, *services.SuiteService, *chat.MemoryTranscript) {
	t.Helper()
	store, err := sqlite.NewStateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	suites := services.NewSuiteService(store)
	vars := services.NewVariableService(store, suites)
	transcript := chat.NewMemoryTranscript()
	transcript.SetActive(testChat)
	return New(vars, suites, transcript), vars, suites, transcript
}

func seedFloors(transcript *chat.MemoryTranscript, n int) {
	for i := 1; i <= n; i++ {
		speaker := "Narrator"
		isUser := i%2 == 1
		if isUser {
			speaker = "User"
		}
		transcript.Append(testChat, types.Floor{
			Speaker: speaker,
			IsUser:  isUser,
			Text:    fmt.Sprintf("line %d", i),
		})
	}
}

func TestResolveMacrosStackIndexing(t *testing.T) {
	r, vars, _, _ := newTestResolver(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "notes", "Notes", types.ModeStack)
	require.NoError(t, err)
	for _, content := range []string{"alpha", "beta", "gamma"} {
		_, err := vars.AddEntry(ctx, def.ID, testChat, content, "1")
		require.NoError(t, err)
	}

	assert.Equal(t, "alpha\n\nbeta\n\ngamma", r.ResolveMacros(ctx, testChat, "{{notes}}"))
	assert.Equal(t, "beta", r.ResolveMacros(ctx, testChat, "{{notes@2}}"))
	assert.Equal(t, "alpha\n\nbeta", r.ResolveMacros(ctx, testChat, "{{notes@1-2}}"))
	assert.Equal(t, "gamma", r.ResolveMacros(ctx, testChat, "{{notes@end}}"))
	// Out-of-bounds clamps rather than failing.
	assert.Equal(t, "gamma", r.ResolveMacros(ctx, testChat, "{{notes@99}}"))
}

func TestResolveMacrosSkipsHiddenEntries(t *testing.T) {
	r, vars, _, _ := newTestResolver(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "log", "Log", types.ModeStack)
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		_, err := vars.AddEntry(ctx, def.ID, testChat, content, "1")
		require.NoError(t, err)
	}
	// Hide the middle entry: indices now address [one, three].
	require.NoError(t, vars.ToggleVisibility(ctx, def.ID, testChat, 2))

	assert.Equal(t, "one\n\nthree", r.ResolveMacros(ctx, testChat, "{{log@1-2}}"))
	assert.Equal(t, "three", r.ResolveMacros(ctx, testChat, "{{log@2}}"))
}

func TestResolveMacrosReplaceIgnoresRange(t *testing.T) {
	r, vars, _, _ := newTestResolver(t)
	ctx := context.Background()

	def, err := vars.Create(ctx, "mood", "Mood", types.ModeReplace)
	require.NoError(t, err)
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "calm", "1"))
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "tense", "2"))

	assert.Equal(t, "tense", r.ResolveMacros(ctx, testChat, "{{mood}}"))
	assert.Equal(t, "tense", r.ResolveMacros(ctx, testChat, "{{mood@1-99}}"))

	// The history cursor changes what the macro renders.
	_, err = vars.NavigateHistory(ctx, def.ID, testChat, "prev")
	require.NoError(t, err)
	assert.Equal(t, "calm", r.ResolveMacros(ctx, testChat, "{{mood}}"))
}

func TestResolveMacrosUnknownAndNested(t *testing.T) {
	r, vars, _, _ := newTestResolver(t)
	ctx := context.Background()

	assert.Equal(t, "before  after", r.ResolveMacros(ctx, testChat, "before {{nope}} after"))

	// A value containing a macro reference is expanded on the next pass.
	inner, err := vars.Create(ctx, "inner", "Inner", types.ModeReplace)
	require.NoError(t, err)
	require.NoError(t, vars.SetValue(ctx, inner.ID, testChat, "deep", "1"))
	outer, err := vars.Create(ctx, "outer", "Outer", types.ModeReplace)
	require.NoError(t, err)
	require.NoError(t, vars.SetValue(ctx, outer.ID, testChat, "got {{inner}}", "1"))

	assert.Equal(t, "got deep", r.ResolveMacros(ctx, testChat, "{{outer}}"))
}

func TestFloorMacro(t *testing.T) {
	r, _, _, transcript := newTestResolver(t)
	ctx := context.Background()
	seedFloors(transcript, 4)

	assert.Equal(t, "User: line 3\nNarrator: line 4", r.ResolveMacros(ctx, testChat, "{{chat@3-4}}"))
	// No range covers the whole conversation.
	assert.Equal(t,
		"User: line 1\nNarrator: line 2\nUser: line 3\nNarrator: line 4",
		r.ResolveMacros(ctx, testChat, "{{chat}}"))
	// No active chat resolves to empty.
	assert.Equal(t, "", r.ResolveMacros(ctx, "", "{{chat@1}}"))
}

func TestResolveSuiteNoContent(t *testing.T) {
	r, vars, suites, _ := newTestResolver(t)
	ctx := context.Background()

	suite, err := suites.Create(ctx, "Empty")
	require.NoError(t, err)

	// A suite with only variable items still has no content to resolve.
	def, err := vars.Create(ctx, "summary", "Summary", types.ModeStack)
	require.NoError(t, err)
	_, err = suites.AddVariableItem(ctx, suite.ID, def.ID)
	require.NoError(t, err)

	res, err := r.ResolveSuite(ctx, suite.ID, testChat, 10)
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Nil(t, res)
}

func TestResolveSuiteCombinesItems(t *testing.T) {
	r, vars, suites, transcript := newTestResolver(t)
	ctx := context.Background()
	seedFloors(transcript, 10)

	mood, err := vars.Create(ctx, "mood", "Mood", types.ModeReplace)
	require.NoError(t, err)
	require.NoError(t, vars.SetValue(ctx, mood.ID, testChat, "tense", "1"))

	suite, err := suites.Create(ctx, "Scene")
	require.NoError(t, err)
	_, err = suites.AddPromptItem(ctx, suite.ID, "Head", "Current mood: {{mood}}")
	require.NoError(t, err)
	_, err = suites.AddChatContentItem(ctx, suite.ID, "Recent",
		types.RangeConfig{Kind: types.RangeFixed, Start: 9, End: 10}, false, types.RegexConfig{})
	require.NoError(t, err)
	disabled, err := suites.AddPromptItem(ctx, suite.ID, "Off", "never seen")
	require.NoError(t, err)
	require.NoError(t, suites.SetItemEnabled(ctx, suite.ID, disabled.ID, false))

	res, err := r.ResolveSuite(ctx, suite.ID, testChat, 10)
	require.NoError(t, err)
	assert.Equal(t, "Current mood: tense\n\nUser: line 9\nNarrator: line 10", res.Prompt)
	assert.Equal(t, "9-10", res.FloorRange)
}

func TestResolveSuiteFloorRangeUnion(t *testing.T) {
	r, _, suites, transcript := newTestResolver(t)
	ctx := context.Background()
	seedFloors(transcript, 20)

	suite, err := suites.Create(ctx, "Union")
	require.NoError(t, err)
	_, err = suites.AddChatContentItem(ctx, suite.ID, "Early",
		types.RangeConfig{Kind: types.RangeFixed, Start: 3, End: 5}, false, types.RegexConfig{})
	require.NoError(t, err)
	_, err = suites.AddChatContentItem(ctx, suite.ID, "Late",
		types.RangeConfig{Kind: types.RangeLatest, Count: 2}, false, types.RegexConfig{})
	require.NoError(t, err)

	res, err := r.ResolveSuite(ctx, suite.ID, testChat, 20)
	require.NoError(t, err)
	assert.Equal(t, "3-20", res.FloorRange)
}

func TestResolveSuitePromptOnlyFallsBackToChatLength(t *testing.T) {
	r, _, suites, transcript := newTestResolver(t)
	ctx := context.Background()
	seedFloors(transcript, 7)

	suite, err := suites.Create(ctx, "PromptOnly")
	require.NoError(t, err)
	_, err = suites.AddPromptItem(ctx, suite.ID, "P", "just text")
	require.NoError(t, err)

	res, err := r.ResolveSuite(ctx, suite.ID, testChat, 7)
	require.NoError(t, err)
	assert.Equal(t, "just text", res.Prompt)
	assert.Equal(t, "7", res.FloorRange)
}

func TestResolveSuiteClampsStaleSnapshotLength(t *testing.T) {
	r, _, suites, transcript := newTestResolver(t)
	ctx := context.Background()
	seedFloors(transcript, 5)

	suite, err := suites.Create(ctx, "Stale")
	require.NoError(t, err)
	_, err = suites.AddChatContentItem(ctx, suite.ID, "All",
		types.RangeConfig{Kind: types.RangeLatest, Count: 3}, false, types.RegexConfig{})
	require.NoError(t, err)

	// The snapshot claims 50 floors; only 5 exist.
	res, err := r.ResolveSuite(ctx, suite.ID, testChat, 50)
	require.NoError(t, err)
	assert.Equal(t, "3-5", res.FloorRange)
}

func TestResolveSuiteExcludesUserTurns(t *testing.T) {
	r, _, suites, transcript := newTestResolver(t)
	ctx := context.Background()
	seedFloors(transcript, 4)

	suite, err := suites.Create(ctx, "NoUser")
	require.NoError(t, err)
	_, err = suites.AddChatContentItem(ctx, suite.ID, "Bots",
		types.RangeConfig{Kind: types.RangeFixed, Start: 1, End: 4}, true, types.RegexConfig{})
	require.NoError(t, err)

	res, err := r.ResolveSuite(ctx, suite.ID, testChat, 4)
	require.NoError(t, err)
	assert.Equal(t, "Narrator: line 2\nNarrator: line 4", res.Prompt)
	// Excluded user turns still count toward the covered floor range.
	assert.Equal(t, "1-4", res.FloorRange)
}
