// Package types defines the core data structures for the Loreline analysis
// system: variable definitions and values, suites and their items, trigger
// configurations, and queue tasks.
package types

import "regexp"

// VariableMode determines how values accumulate for a variable.
type VariableMode string

const (
	// ModeStack appends each new value as a separate entry.
	ModeStack VariableMode = "stack"

	// ModeReplace keeps one current value and pushes superseded values
	// onto a navigable history.
	ModeReplace VariableMode = "replace"
)

// IsValidMode reports whether m is a recognized variable mode.
func IsValidMode(m VariableMode) bool {
	return m == ModeStack || m == ModeReplace
}

// TriggerType determines when a suite's analysis is enqueued.
type TriggerType string

const (
	// TriggerManual never fires automatically.
	TriggerManual TriggerType = "manual"

	// TriggerInterval fires every N qualifying message events.
	TriggerInterval TriggerType = "interval"

	// TriggerKeyword fires when a message contains a configured keyword.
	TriggerKeyword TriggerType = "keyword"
)

// IsValidTriggerType reports whether t is a recognized trigger type.
func IsValidTriggerType(t TriggerType) bool {
	return t == TriggerManual || t == TriggerInterval || t == TriggerKeyword
}

// ItemType discriminates suite item variants.
type ItemType string

const (
	// ItemPrompt is literal instruction text, possibly containing macros.
	ItemPrompt ItemType = "prompt"

	// ItemChatContent is a selector over conversation history.
	ItemChatContent ItemType = "chat-content"

	// ItemVariable declares that a variable's tag must be requested
	// from the model.
	ItemVariable ItemType = "variable"

	// ItemCharPrompt references character-bound content.
	ItemCharPrompt ItemType = "char-prompt"
)

// CharPromptSubType identifies which piece of character-bound content a
// char-prompt item references.
type CharPromptSubType string

const (
	CharDesc        CharPromptSubType = "char-desc"
	CharPersonality CharPromptSubType = "char-personality"
	CharScenario    CharPromptSubType = "char-scenario"
	CharWorldbook   CharPromptSubType = "worldbook"
)

// IsFixedCharSubType reports whether s is one of the three fixed character
// subtypes that allow at most one item per (charId, subType).
func IsFixedCharSubType(s CharPromptSubType) bool {
	return s == CharDesc || s == CharPersonality || s == CharScenario
}

// variableNamePattern restricts names to identifier-safe characters: ASCII
// letters, digits, underscore, plus letters from local scripts.
var variableNamePattern = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

// IsValidVariableName reports whether name is a non-empty identifier-safe
// string usable inside {{...}} macros.
func IsValidVariableName(name string) bool {
	return name != "" && variableNamePattern.MatchString(name)
}
