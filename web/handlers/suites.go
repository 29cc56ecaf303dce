package handlers

import (
	"io"
	"net/http"

	"github.com/scrypster/loreline/internal/engine"
	"github.com/scrypster/loreline/internal/importer"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/pkg/types"
)

// SuiteHandlers serves the suite registry and analysis endpoints.
type SuiteHandlers struct {
	suites   *services.SuiteService
	trigger  *engine.TriggerEngine
	analyzer *engine.Analyzer
	importer *importer.Importer
}

// NewSuiteHandlers creates handlers over the suite service and engine.
func NewSuiteHandlers(suites *services.SuiteService, trigger *engine.TriggerEngine, analyzer *engine.Analyzer, imp *importer.Importer) *SuiteHandlers {
	return &SuiteHandlers{suites: suites, trigger: trigger, analyzer: analyzer, importer: imp}
}

// ListSuites handles GET /api/suites.
func (h *SuiteHandlers) ListSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := h.suites.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list suites", err)
		return
	}
	respondJSON(w, http.StatusOK, suites)
}

// CreateSuite handles POST /api/suites.
func (h *SuiteHandlers) CreateSuite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	suite, err := h.suites.Create(r.Context(), req.Name)
	if err != nil {
		respondError(w, statusFor(err), "failed to create suite", err)
		return
	}
	respondJSON(w, http.StatusCreated, suite)
}

// GetSuite handles GET /api/suites/{id}.
func (h *SuiteHandlers) GetSuite(w http.ResponseWriter, r *http.Request) {
	suite, err := h.suites.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, statusFor(err), "suite not found", err)
		return
	}
	respondJSON(w, http.StatusOK, suite)
}

// DeleteSuite handles DELETE /api/suites/{id}.
func (h *SuiteHandlers) DeleteSuite(w http.ResponseWriter, r *http.Request) {
	if err := h.suites.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, statusFor(err), "failed to delete suite", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetTrigger handles PUT /api/suites/{id}/trigger.
func (h *SuiteHandlers) SetTrigger(w http.ResponseWriter, r *http.Request) {
	var req types.Trigger
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.suites.SetTrigger(r.Context(), r.PathValue("id"), req); err != nil {
		respondError(w, statusFor(err), "failed to set trigger", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AddItemRequest is the body for POST /api/suites/{id}/items; the fields
// for exactly one item type are expected.
type AddItemRequest struct {
	Type string `json:"type"`

	// prompt
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`

	// chat-content
	Range       *types.RangeConfig `json:"range,omitempty"`
	ExcludeUser bool               `json:"exclude_user,omitempty"`
	Regex       *types.RegexConfig `json:"regex,omitempty"`

	// variable
	VariableID string `json:"variable_id,omitempty"`

	// char-prompt
	CharID   string `json:"char_id,omitempty"`
	SubType  string `json:"sub_type,omitempty"`
	EntryUID string `json:"entry_uid,omitempty"`
}

// AddItem handles POST /api/suites/{id}/items.
func (h *SuiteHandlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	suiteID := r.PathValue("id")

	var item *types.Item
	var err error
	switch types.ItemType(req.Type) {
	case types.ItemPrompt:
		item, err = h.suites.AddPromptItem(r.Context(), suiteID, req.Name, req.Content)
	case types.ItemChatContent:
		rangeCfg := types.RangeConfig{}
		if req.Range != nil {
			rangeCfg = *req.Range
		}
		regexCfg := types.RegexConfig{}
		if req.Regex != nil {
			regexCfg = *req.Regex
		}
		item, err = h.suites.AddChatContentItem(r.Context(), suiteID, req.Name, rangeCfg, req.ExcludeUser, regexCfg)
	case types.ItemVariable:
		item, err = h.suites.AddVariableItem(r.Context(), suiteID, req.VariableID)
	case types.ItemCharPrompt:
		item, err = h.suites.AddCharPromptItem(r.Context(), suiteID, req.CharID, types.CharPromptSubType(req.SubType), req.EntryUID)
	default:
		respondError(w, http.StatusBadRequest, "unknown item type", nil)
		return
	}
	if err != nil {
		respondError(w, statusFor(err), "failed to add item", err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// RemoveItem handles DELETE /api/suites/{id}/items/{itemID}.
func (h *SuiteHandlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.suites.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("itemID")); err != nil {
		respondError(w, statusFor(err), "failed to remove item", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ReorderItems handles POST /api/suites/{id}/items/reorder.
func (h *SuiteHandlers) ReorderItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order []string `json:"order"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.suites.ReorderItems(r.Context(), r.PathValue("id"), req.Order); err != nil {
		respondError(w, statusFor(err), "failed to reorder items", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Analyze handles POST /api/suites/{id}/analyze, the user-facing
// "analyze now" action. It enqueues regardless of the suite's trigger type.
func (h *SuiteHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	task, err := h.trigger.TriggerManually(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, statusFor(err), "failed to enqueue analysis", err)
		return
	}
	respondJSON(w, http.StatusAccepted, task)
}

// Reapply handles POST /api/suites/{id}/reapply: re-parse and re-assign a
// previously received (possibly edited) response without a model call.
func (h *SuiteHandlers) Reapply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response string `json:"response"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.analyzer.ReapplyResponse(r.Context(), r.PathValue("id"), req.Response); err != nil {
		respondError(w, statusFor(err), "failed to reapply response", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// LastRun handles GET /api/suites/{id}/last-run.
func (h *SuiteHandlers) LastRun(w http.ResponseWriter, r *http.Request) {
	rec := h.analyzer.LastRun(r.PathValue("id"))
	if rec == nil {
		respondError(w, http.StatusNotFound, "no recorded run for suite", nil)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Export handles GET /api/suites/{id}/export, returning the YAML preset.
func (h *SuiteHandlers) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.importer.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, statusFor(err), "failed to export suite", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import handles POST /api/suites/import with a YAML preset body.
func (h *SuiteHandlers) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	defer func() { _ = r.Body.Close() }()
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}
	suite, err := h.importer.Import(r.Context(), data)
	if err != nil {
		respondError(w, statusFor(err), "failed to import preset", err)
		return
	}
	respondJSON(w, http.StatusCreated, suite)
}
