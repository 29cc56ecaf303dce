package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/macros"
	"github.com/scrypster/loreline/internal/resolver"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage/sqlite"
	"github.com/scrypster/loreline/pkg/types"
)

const testChat = "chat-1"

func newVariableHandlers(t *testing.T) (*VariableHandlers, *services.VariableService) {
	t.Helper()
	store, err := sqlite.NewStateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	suites := services.NewSuiteService(store)
	vars := services.NewVariableService(store, suites)
	return NewVariableHandlers(vars, nil), vars
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateVariableHandler(t *testing.T) {
	h, _ := newVariableHandlers(t)

	rec := httptest.NewRecorder()
	h.CreateVariable(rec, jsonRequest(t, "POST", "/api/variables",
		CreateVariableRequest{Name: "summary", Tag: "Summary", Mode: "stack"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	var def types.VariableDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "summary", def.Name)
	assert.NotEmpty(t, def.ID)

	// Duplicate name is a validation failure.
	rec = httptest.NewRecorder()
	h.CreateVariable(rec, jsonRequest(t, "POST", "/api/variables",
		CreateVariableRequest{Name: "summary", Tag: "Other", Mode: "replace"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Malformed body
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/variables", bytes.NewBufferString("{nope"))
	h.CreateVariable(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenameVariableHandlerStatusCodes(t *testing.T) {
	h, vars := newVariableHandlers(t)
	def, err := vars.Create(t.Context(), "before", "Before", types.ModeStack)
	require.NoError(t, err)

	req := jsonRequest(t, "PATCH", "/api/variables/"+def.ID, map[string]string{"name": "after"})
	req.SetPathValue("id", def.ID)
	rec := httptest.NewRecorder()
	h.RenameVariable(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown id maps to 404.
	req = jsonRequest(t, "PATCH", "/api/variables/nope", map[string]string{"name": "x"})
	req.SetPathValue("id", "nope")
	rec = httptest.NewRecorder()
	h.RenameVariable(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetValueHandlerRequiresChat(t *testing.T) {
	h, vars := newVariableHandlers(t)
	def, err := vars.Create(t.Context(), "notes", "Notes", types.ModeStack)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/variables/"+def.ID+"/value", nil)
	req.SetPathValue("id", def.ID)
	rec := httptest.NewRecorder()
	h.GetValue(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest("GET", "/api/variables/"+def.ID+"/value?chat="+testChat, nil)
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.GetValue(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var value types.VariableValue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	assert.Equal(t, types.ModeStack, value.Mode)
	assert.NotNil(t, value.Stack)
}

func TestEntryHandlers(t *testing.T) {
	h, vars := newVariableHandlers(t)
	def, err := vars.Create(t.Context(), "log", "Log", types.ModeStack)
	require.NoError(t, err)

	add := func(content string) {
		req := jsonRequest(t, "POST", "/api/variables/"+def.ID+"/entries",
			EntryRequest{ChatID: testChat, Content: content, FloorRange: "1"})
		req.SetPathValue("id", def.ID)
		rec := httptest.NewRecorder()
		h.AddEntry(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	add("first")
	add("second")

	// Bad permutation maps to 422.
	req := jsonRequest(t, "POST", "/api/variables/"+def.ID+"/entries/reorder",
		map[string]interface{}{"chat_id": testChat, "order": []int{1}})
	req.SetPathValue("id", def.ID)
	rec := httptest.NewRecorder()
	h.ReorderEntries(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Valid reorder succeeds.
	req = jsonRequest(t, "POST", "/api/variables/"+def.ID+"/entries/reorder",
		map[string]interface{}{"chat_id": testChat, "order": []int{2, 1}})
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.ReorderEntries(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Deleting a missing entry maps to 404.
	req = jsonRequest(t, "DELETE", "/api/variables/"+def.ID+"/entries",
		EntryRequest{ChatID: testChat, EntryID: 99})
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.DeleteEntry(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandlers(t *testing.T) {
	h, vars := newVariableHandlers(t)
	ctx := t.Context()
	def, err := vars.Create(ctx, "mood", "Mood", types.ModeReplace)
	require.NoError(t, err)
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "calm", "1"))
	require.NoError(t, vars.SetValue(ctx, def.ID, testChat, "tense", "2"))

	req := jsonRequest(t, "POST", "/api/variables/"+def.ID+"/history/navigate",
		map[string]string{"chat_id": testChat, "direction": "prev"})
	req.SetPathValue("id", def.ID)
	rec := httptest.NewRecorder()
	h.NavigateHistory(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp["history_index"])

	// Walking past the oldest entry is a 422, not a 500.
	req = jsonRequest(t, "POST", "/api/variables/"+def.ID+"/history/navigate",
		map[string]string{"chat_id": testChat, "direction": "prev"})
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.NavigateHistory(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Apply an out-of-range history index.
	req = jsonRequest(t, "POST", "/api/variables/"+def.ID+"/history/apply",
		map[string]interface{}{"chat_id": testChat, "index": 9})
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.ApplyHistory(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestVariableHandlersKeepMacroRegistryInSync(t *testing.T) {
	store, err := sqlite.NewStateStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	suites := services.NewSuiteService(store)
	vars := services.NewVariableService(store, suites)
	transcript := chat.NewMemoryTranscript()
	transcript.SetActive(testChat)
	res := resolver.New(vars, suites, transcript)
	registry, err := macros.NewRegistry(vars, transcript, res)
	require.NoError(t, err)

	h := NewVariableHandlers(vars, registry)

	// Creating through the handler registers the macro name.
	rec := httptest.NewRecorder()
	h.CreateVariable(rec, jsonRequest(t, "POST", "/api/variables",
		CreateVariableRequest{Name: "notes", Tag: "Notes", Mode: "stack"}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var def types.VariableDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Contains(t, registry.Names(), "notes")

	// An entry written through the handler is visible to the macro
	// immediately, no preload pass in between.
	req := jsonRequest(t, "POST", "/api/variables/x/entries",
		EntryRequest{ChatID: testChat, Content: "first fact", FloorRange: "1-2"})
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.AddEntry(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "first fact", registry.Resolve("notes", ""))

	// Renaming re-registers under the new name.
	req = jsonRequest(t, "PATCH", "/api/variables/x", map[string]string{"name": "memo"})
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.RenameVariable(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, registry.Names(), "memo")
	assert.NotContains(t, registry.Names(), "notes")
	assert.Equal(t, "first fact", registry.Resolve("memo", ""))

	// Deleting removes the registration.
	req = jsonRequest(t, "DELETE", "/api/variables/x", nil)
	req.SetPathValue("id", def.ID)
	rec = httptest.NewRecorder()
	h.DeleteVariable(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, registry.Names(), "memo")
}
