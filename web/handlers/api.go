package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// MacroSync is the slice of the host macro registry the variable endpoints
// keep in step: re-register callbacks after definition changes, refresh a
// cached value after a value mutation.
type MacroSync interface {
	RefreshVariableMacros(ctx context.Context) error
	Reload(ctx context.Context, variableID, chatID string)
}

// VariableHandlers serves the variable definition and value endpoints.
type VariableHandlers struct {
	vars   *services.VariableService
	macros MacroSync // may be nil
}

// NewVariableHandlers creates handlers over the variable service. The macro
// registry may be nil when no host template engine is attached.
func NewVariableHandlers(vars *services.VariableService, macros MacroSync) *VariableHandlers {
	return &VariableHandlers{vars: vars, macros: macros}
}

// syncMacroNames re-registers variable macro callbacks after a definition
// change.
func (h *VariableHandlers) syncMacroNames(ctx context.Context) {
	if h.macros == nil {
		return
	}
	if err := h.macros.RefreshVariableMacros(ctx); err != nil {
		log.Printf("WARNING: handlers: failed to refresh macro registrations: %v", err)
	}
}

// reloadMacroValue refreshes one cached macro value after a value mutation.
func (h *VariableHandlers) reloadMacroValue(ctx context.Context, variableID, chatID string) {
	if h.macros != nil {
		h.macros.Reload(ctx, variableID, chatID)
	}
}

// CreateVariableRequest is the body for POST /api/variables.
type CreateVariableRequest struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
	Mode string `json:"mode"`
}

// ListVariables handles GET /api/variables.
func (h *VariableHandlers) ListVariables(w http.ResponseWriter, r *http.Request) {
	defs, err := h.vars.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list variables", err)
		return
	}
	respondJSON(w, http.StatusOK, defs)
}

// CreateVariable handles POST /api/variables.
func (h *VariableHandlers) CreateVariable(w http.ResponseWriter, r *http.Request) {
	var req CreateVariableRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	def, err := h.vars.Create(r.Context(), req.Name, req.Tag, types.VariableMode(req.Mode))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "failed to create variable", err)
		return
	}
	h.syncMacroNames(r.Context())
	respondJSON(w, http.StatusCreated, def)
}

// RenameVariable handles PATCH /api/variables/{id}.
func (h *VariableHandlers) RenameVariable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.Rename(r.Context(), r.PathValue("id"), req.Name); err != nil {
		respondError(w, statusFor(err), "failed to rename variable", err)
		return
	}
	h.syncMacroNames(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteVariable handles DELETE /api/variables/{id}. Deletion cascades to
// all values and suite references.
func (h *VariableHandlers) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	if err := h.vars.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, statusFor(err), "failed to delete variable", err)
		return
	}
	h.syncMacroNames(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetValue handles GET /api/variables/{id}/value?chat={chatID}.
func (h *VariableHandlers) GetValue(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat")
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "chat query parameter is required", nil)
		return
	}
	value, err := h.vars.GetValue(r.Context(), r.PathValue("id"), chatID)
	if err != nil {
		respondError(w, statusFor(err), "failed to load value", err)
		return
	}
	respondJSON(w, http.StatusOK, value)
}

// EntryRequest is the body for stack entry and replace value writes.
type EntryRequest struct {
	ChatID     string `json:"chat_id"`
	Content    string `json:"content"`
	FloorRange string `json:"floor_range"`
	EntryID    int    `json:"entry_id,omitempty"`
}

// AddEntry handles POST /api/variables/{id}/entries.
func (h *VariableHandlers) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	entry, err := h.vars.AddEntry(r.Context(), r.PathValue("id"), req.ChatID, req.Content, req.FloorRange)
	if err != nil {
		respondError(w, statusFor(err), "failed to add entry", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusCreated, entry)
}

// UpdateEntry handles PATCH /api/variables/{id}/entries.
func (h *VariableHandlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.UpdateEntry(r.Context(), r.PathValue("id"), req.ChatID, req.EntryID, req.Content); err != nil {
		respondError(w, statusFor(err), "failed to update entry", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteEntry handles DELETE /api/variables/{id}/entries.
func (h *VariableHandlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.DeleteEntry(r.Context(), r.PathValue("id"), req.ChatID, req.EntryID); err != nil {
		respondError(w, statusFor(err), "failed to delete entry", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ToggleEntry handles POST /api/variables/{id}/entries/toggle.
func (h *VariableHandlers) ToggleEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.ToggleVisibility(r.Context(), r.PathValue("id"), req.ChatID, req.EntryID); err != nil {
		respondError(w, statusFor(err), "failed to toggle entry", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ReorderEntries handles POST /api/variables/{id}/entries/reorder.
func (h *VariableHandlers) ReorderEntries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
		Order  []int  `json:"order"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.ReorderEntries(r.Context(), r.PathValue("id"), req.ChatID, req.Order); err != nil {
		respondError(w, statusFor(err), "failed to reorder entries", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetValue handles POST /api/variables/{id}/value (replace mode).
func (h *VariableHandlers) SetValue(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.SetValue(r.Context(), r.PathValue("id"), req.ChatID, req.Content, req.FloorRange); err != nil {
		respondError(w, statusFor(err), "failed to set value", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// NavigateHistory handles POST /api/variables/{id}/history/navigate.
func (h *VariableHandlers) NavigateHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID    string `json:"chat_id"`
		Direction string `json:"direction"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	index, err := h.vars.NavigateHistory(r.Context(), r.PathValue("id"), req.ChatID, req.Direction)
	if err != nil {
		respondError(w, statusFor(err), "history navigation failed", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]int{"history_index": index})
}

// ApplyHistory handles POST /api/variables/{id}/history/apply.
func (h *VariableHandlers) ApplyHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
		Index  int    `json:"index"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.vars.ApplyHistoryVersion(r.Context(), r.PathValue("id"), req.ChatID, req.Index); err != nil {
		respondError(w, statusFor(err), "failed to apply history version", err)
		return
	}
	h.reloadMacroValue(r.Context(), r.PathValue("id"), req.ChatID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// statusFor maps domain errors to HTTP status codes. Validation failures
// are 422, missing resources 404, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, services.ErrEntryNotFound),
		errors.Is(err, services.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, services.ErrDuplicateName),
		errors.Is(err, services.ErrDuplicateTag),
		errors.Is(err, services.ErrInvalidName),
		errors.Is(err, services.ErrInvalidTag),
		errors.Is(err, services.ErrInvalidMode),
		errors.Is(err, services.ErrWrongMode),
		errors.Is(err, services.ErrBadPermutation),
		errors.Is(err, services.ErrHistoryBoundary),
		errors.Is(err, services.ErrHistoryIndex),
		errors.Is(err, services.ErrDuplicateItem),
		errors.Is(err, services.ErrReorderMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
