package types

// Trigger configures when a suite's analysis is enqueued. Interval and
// Keywords are only meaningful for their respective types.
type Trigger struct {
	Type     TriggerType `json:"type"`
	Interval int         `json:"interval,omitempty"` // Message count threshold for interval triggers
	Keywords []string    `json:"keywords,omitempty"` // Substrings searched case-insensitively
}

// RangeKind selects how a chat-content item picks conversation floors.
type RangeKind string

const (
	// RangeFixed selects floors Start..End.
	RangeFixed RangeKind = "fixed"

	// RangeLatest selects the last Count floors.
	RangeLatest RangeKind = "latest"

	// RangeSkipTake skips the last Skip floors, then takes Count floors
	// backwards from there.
	RangeSkipTake RangeKind = "skip-take"

	// RangeStep samples every Step-th floor starting at Start.
	RangeStep RangeKind = "step"

	// RangePercentStart selects the first Percent% of the conversation.
	RangePercentStart RangeKind = "percent-start"

	// RangePercentEnd selects the last Percent% of the conversation.
	RangePercentEnd RangeKind = "percent-end"

	// RangeExclude selects every floor except ExcludeStart..ExcludeEnd.
	RangeExclude RangeKind = "exclude"
)

// RangeConfig describes which conversation floors a chat-content item
// covers. Floor indices are 1-based.
type RangeConfig struct {
	Kind         RangeKind `json:"kind"`
	Start        int       `json:"start,omitempty"`
	End          int       `json:"end,omitempty"`
	Count        int       `json:"count,omitempty"`
	Skip         int       `json:"skip,omitempty"`
	Step         int       `json:"step,omitempty"`
	Percent      int       `json:"percent,omitempty"` // 1-100
	ExcludeStart int       `json:"exclude_start,omitempty"`
	ExcludeEnd   int       `json:"exclude_end,omitempty"`
}

// RegexSource identifies which provenance tier a substitution rule belongs
// to. Tiers are merged into one execution chain ordered by RegexConfig.Order.
type RegexSource string

const (
	RegexCustom RegexSource = "custom"
	RegexGlobal RegexSource = "global"
	RegexPreset RegexSource = "preset"
	RegexScoped RegexSource = "scoped"
)

// RegexRule is a single find/replace substitution applied to expanded chat
// content.
type RegexRule struct {
	ID      string      `json:"id"`
	Find    string      `json:"find"`    // Regular expression
	Replace string      `json:"replace"` // Replacement, $1-style group refs allowed
	Source  RegexSource `json:"source"`
	Enabled bool        `json:"enabled"`
}

// RegexConfig groups the substitution rules of a chat-content item together
// with the user-defined execution order (rule ids; unlisted rules run after
// listed ones in tier order custom, global, preset, scoped).
type RegexConfig struct {
	Rules []RegexRule `json:"rules,omitempty"`
	Order []string    `json:"order,omitempty"`
}

// Item is one element of a suite. Exactly one variant is populated,
// discriminated by Type. Consumers must match exhaustively on Type.
type Item struct {
	Type ItemType `json:"type"`
	ID   string   `json:"id"` // For variable items this equals the variable definition id

	Prompt      *PromptItem      `json:"prompt,omitempty"`
	ChatContent *ChatContentItem `json:"chat_content,omitempty"`
	Variable    *VariableItem    `json:"variable,omitempty"`
	CharPrompt  *CharPromptItem  `json:"char_prompt,omitempty"`
}

// PromptItem is literal instruction text; macros inside it are expanded at
// resolution time.
type PromptItem struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	Enabled bool   `json:"enabled"`
}

// ChatContentItem selects conversation floors rather than carrying literal
// text.
type ChatContentItem struct {
	Name        string      `json:"name,omitempty"`
	Enabled     bool        `json:"enabled"`
	Range       RangeConfig `json:"range"`
	ExcludeUser bool        `json:"exclude_user"`
	Regex       RegexConfig `json:"regex,omitempty"`
}

// VariableItem declares that the referenced variable's tag must be
// requested from the model. The item id equals the variable definition id.
type VariableItem struct {
	Enabled bool `json:"enabled"`
}

// CharPromptItem references character-bound content. At most one item per
// (CharID, SubType) for the three fixed subtypes; worldbook items are
// distinguished by EntryUID.
type CharPromptItem struct {
	CharID   string            `json:"char_id"`
	SubType  CharPromptSubType `json:"sub_type"`
	EntryUID string            `json:"entry_uid,omitempty"`
	Enabled  bool              `json:"enabled"`
}

// IsEnabled reports whether the item's variant is enabled.
func (it *Item) IsEnabled() bool {
	switch it.Type {
	case ItemPrompt:
		return it.Prompt != nil && it.Prompt.Enabled
	case ItemChatContent:
		return it.ChatContent != nil && it.ChatContent.Enabled
	case ItemVariable:
		return it.Variable != nil && it.Variable.Enabled
	case ItemCharPrompt:
		return it.CharPrompt != nil && it.CharPrompt.Enabled
	}
	return false
}

// Suite is a named, ordered collection of items plus one trigger
// configuration. SnapshotMode, when non-nil, overrides the global default
// for tasks enqueued on behalf of this suite.
type Suite struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Enabled      bool    `json:"enabled"`
	Trigger      Trigger `json:"trigger"`
	Items        []Item  `json:"items"`
	SnapshotMode *bool   `json:"snapshot_mode,omitempty"`
}
