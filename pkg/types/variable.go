package types

import "time"

// VariableDefinition describes one named analysis variable. Definitions are
// global (shared across conversations); values are stored per chat.
type VariableDefinition struct {
	ID        string       `json:"id"`         // Unique identifier
	Name      string       `json:"name"`       // Unique macro name ({{name}})
	Tag       string       `json:"tag"`        // Unique wrapper tag the model must emit
	Mode      VariableMode `json:"mode"`       // stack or replace
	CreatedAt time.Time    `json:"created_at"` // When the definition was created
	UpdatedAt time.Time    `json:"updated_at"` // Last rename timestamp
}

// Entry is one stored value unit: a stack entry or a replace-history entry.
type Entry struct {
	ID         int       `json:"id"`          // Monotonic per-variable id
	Content    string    `json:"content"`     // Extracted text
	FloorRange string    `json:"floor_range"` // Floors the value covers, e.g. "56-65" or "65"
	Timestamp  time.Time `json:"timestamp"`   // When the entry was recorded
	Hidden     bool      `json:"hidden"`      // Hidden entries are skipped by macro indexing
}

// StackValue is the per-chat value of a stack-mode variable. Array order is
// the display and macro reference order.
type StackValue struct {
	Entries     []Entry `json:"entries"`
	NextEntryID int     `json:"next_entry_id"`
}

// ReplaceValue is the per-chat value of a replace-mode variable.
// HistoryIndex -1 means the current value is authoritative; 0..len-1 means a
// historical entry is being viewed.
type ReplaceValue struct {
	CurrentValue      string  `json:"current_value"`
	CurrentFloorRange string  `json:"current_floor_range"`
	History           []Entry `json:"history"`
	HistoryIndex      int     `json:"history_index"`
	NextEntryID       int     `json:"next_entry_id"`
}

// VariableValue is the per-(variable, chat) value blob. Exactly one of
// Stack/Replace is populated, selected by Mode.
type VariableValue struct {
	VariableID string        `json:"variable_id"`
	ChatID     string        `json:"chat_id"`
	Mode       VariableMode  `json:"mode"`
	Stack      *StackValue   `json:"stack,omitempty"`
	Replace    *ReplaceValue `json:"replace,omitempty"`
}

// NewVariableValue creates an empty value blob for the given mode.
func NewVariableValue(variableID, chatID string, mode VariableMode) *VariableValue {
	v := &VariableValue{VariableID: variableID, ChatID: chatID, Mode: mode}
	switch mode {
	case ModeStack:
		v.Stack = &StackValue{Entries: []Entry{}, NextEntryID: 1}
	case ModeReplace:
		v.Replace = &ReplaceValue{History: []Entry{}, HistoryIndex: -1, NextEntryID: 1}
	}
	return v
}

// VisibleEntries returns the non-hidden entries of a stack value in array
// order. Returns an empty slice for non-stack values.
func (v *VariableValue) VisibleEntries() []Entry {
	if v.Mode != ModeStack || v.Stack == nil {
		return nil
	}
	visible := make([]Entry, 0, len(v.Stack.Entries))
	for _, e := range v.Stack.Entries {
		if !e.Hidden {
			visible = append(visible, e)
		}
	}
	return visible
}

// DisplayValue returns the value a macro or UI should show right now:
// for stack mode the blank-line join of visible entries, for replace mode
// whichever of current/history HistoryIndex addresses.
func (v *VariableValue) DisplayValue() string {
	switch v.Mode {
	case ModeStack:
		visible := v.VisibleEntries()
		out := ""
		for i, e := range visible {
			if i > 0 {
				out += "\n\n"
			}
			out += e.Content
		}
		return out
	case ModeReplace:
		if v.Replace == nil {
			return ""
		}
		if v.Replace.HistoryIndex >= 0 && v.Replace.HistoryIndex < len(v.Replace.History) {
			return v.Replace.History[v.Replace.HistoryIndex].Content
		}
		return v.Replace.CurrentValue
	}
	return ""
}
