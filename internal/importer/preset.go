// Package importer provides YAML import and export of suite presets, so a
// suite (trigger, items, and the variable definitions its items reference)
// can be shared between installations as a single file.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// SuitePreset is the round-trippable YAML shape of one suite. Variable
// items reference variables by name; the preset carries the definitions so
// missing variables can be created on import.
type SuitePreset struct {
	Name         string           `yaml:"name"`
	Trigger      PresetTrigger    `yaml:"trigger"`
	SnapshotMode *bool            `yaml:"snapshot_mode,omitempty"`
	Variables    []PresetVariable `yaml:"variables,omitempty"`
	Items        []PresetItem     `yaml:"items"`
}

// PresetTrigger mirrors types.Trigger in YAML.
type PresetTrigger struct {
	Type     string   `yaml:"type"`
	Interval int      `yaml:"interval,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
}

// PresetVariable is a variable definition carried with the preset.
type PresetVariable struct {
	Name string `yaml:"name"`
	Tag  string `yaml:"tag"`
	Mode string `yaml:"mode"`
}

// PresetItem is one suite item. Exactly the fields for its type are set.
type PresetItem struct {
	Type string `yaml:"type"`

	// prompt
	Name    string `yaml:"name,omitempty"`
	Content string `yaml:"content,omitempty"`

	// chat-content
	Range       *types.RangeConfig `yaml:"range,omitempty"`
	ExcludeUser bool               `yaml:"exclude_user,omitempty"`
	Regex       *types.RegexConfig `yaml:"regex,omitempty"`

	// variable (referenced by name)
	Variable string `yaml:"variable,omitempty"`

	// char-prompt
	CharID   string `yaml:"char_id,omitempty"`
	SubType  string `yaml:"sub_type,omitempty"`
	EntryUID string `yaml:"entry_uid,omitempty"`
}

// Importer creates and serializes suite presets against the live services.
type Importer struct {
	suites *services.SuiteService
	vars   *services.VariableService
}

// New creates a preset importer.
func New(suites *services.SuiteService, vars *services.VariableService) *Importer {
	return &Importer{suites: suites, vars: vars}
}

// Export renders one suite as a YAML preset, including the definitions of
// every variable its items reference.
func (im *Importer) Export(ctx context.Context, suiteID string) ([]byte, error) {
	suite, err := im.suites.Get(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	preset := SuitePreset{
		Name: suite.Name,
		Trigger: PresetTrigger{
			Type:     string(suite.Trigger.Type),
			Interval: suite.Trigger.Interval,
			Keywords: suite.Trigger.Keywords,
		},
		SnapshotMode: suite.SnapshotMode,
	}

	for _, item := range suite.Items {
		switch item.Type {
		case types.ItemPrompt:
			preset.Items = append(preset.Items, PresetItem{
				Type:    string(types.ItemPrompt),
				Name:    item.Prompt.Name,
				Content: item.Prompt.Content,
			})
		case types.ItemChatContent:
			cc := item.ChatContent
			rangeCfg := cc.Range
			presetItem := PresetItem{
				Type:        string(types.ItemChatContent),
				Name:        cc.Name,
				Range:       &rangeCfg,
				ExcludeUser: cc.ExcludeUser,
			}
			if len(cc.Regex.Rules) > 0 || len(cc.Regex.Order) > 0 {
				regexCfg := cc.Regex
				presetItem.Regex = &regexCfg
			}
			preset.Items = append(preset.Items, presetItem)
		case types.ItemVariable:
			def, err := im.vars.Get(ctx, item.ID)
			if err != nil {
				log.Printf("WARNING: importer: variable %s referenced but not found, dropping from preset", item.ID)
				continue
			}
			preset.Items = append(preset.Items, PresetItem{
				Type:     string(types.ItemVariable),
				Variable: def.Name,
			})
			preset.Variables = append(preset.Variables, PresetVariable{
				Name: def.Name,
				Tag:  def.Tag,
				Mode: string(def.Mode),
			})
		case types.ItemCharPrompt:
			cp := item.CharPrompt
			preset.Items = append(preset.Items, PresetItem{
				Type:     string(types.ItemCharPrompt),
				CharID:   cp.CharID,
				SubType:  string(cp.SubType),
				EntryUID: cp.EntryUID,
			})
		}
	}

	return yaml.Marshal(&preset)
}

// Import parses a YAML preset and creates the suite it describes. Variable
// definitions carried by the preset are created when no variable of that
// name exists yet; existing variables are reused as-is.
func (im *Importer) Import(ctx context.Context, data []byte) (*types.Suite, error) {
	var preset SuitePreset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("importer: invalid preset YAML: %w", err)
	}
	if preset.Name == "" {
		return nil, fmt.Errorf("importer: preset has no suite name")
	}

	varIDs, err := im.ensureVariables(ctx, preset.Variables)
	if err != nil {
		return nil, err
	}

	suite, err := im.suites.Create(ctx, preset.Name)
	if err != nil {
		return nil, err
	}

	trigger := types.Trigger{
		Type:     types.TriggerType(preset.Trigger.Type),
		Interval: preset.Trigger.Interval,
		Keywords: preset.Trigger.Keywords,
	}
	if types.IsValidTriggerType(trigger.Type) && trigger.Type != types.TriggerManual {
		if err := im.suites.SetTrigger(ctx, suite.ID, trigger); err != nil {
			log.Printf("WARNING: importer: preset trigger rejected, keeping manual: %v", err)
		}
	}
	if preset.SnapshotMode != nil {
		if err := im.suites.SetSnapshotMode(ctx, suite.ID, preset.SnapshotMode); err != nil {
			log.Printf("WARNING: importer: failed to apply snapshot-mode override: %v", err)
		}
	}

	for _, item := range preset.Items {
		if err := im.addItem(ctx, suite.ID, item, varIDs); err != nil {
			log.Printf("WARNING: importer: skipping item (type=%s): %v", item.Type, err)
		}
	}

	return im.suites.Get(ctx, suite.ID)
}

// ensureVariables creates preset variable definitions that don't exist yet
// and returns a name → id map covering all of them.
func (im *Importer) ensureVariables(ctx context.Context, presetVars []PresetVariable) (map[string]string, error) {
	ids := make(map[string]string, len(presetVars))
	for _, pv := range presetVars {
		existing, err := im.vars.GetByName(ctx, pv.Name)
		if err == nil {
			ids[pv.Name] = existing.ID
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		def, err := im.vars.Create(ctx, pv.Name, pv.Tag, types.VariableMode(pv.Mode))
		if err != nil {
			return nil, fmt.Errorf("importer: failed to create variable %q: %w", pv.Name, err)
		}
		ids[pv.Name] = def.ID
	}
	return ids, nil
}

func (im *Importer) addItem(ctx context.Context, suiteID string, item PresetItem, varIDs map[string]string) error {
	switch types.ItemType(item.Type) {
	case types.ItemPrompt:
		_, err := im.suites.AddPromptItem(ctx, suiteID, item.Name, item.Content)
		return err

	case types.ItemChatContent:
		rangeCfg := types.RangeConfig{}
		if item.Range != nil {
			rangeCfg = *item.Range
		}
		regexCfg := types.RegexConfig{}
		if item.Regex != nil {
			regexCfg = *item.Regex
		}
		_, err := im.suites.AddChatContentItem(ctx, suiteID, item.Name, rangeCfg, item.ExcludeUser, regexCfg)
		return err

	case types.ItemVariable:
		variableID, ok := varIDs[item.Variable]
		if !ok {
			// The preset may reference a pre-existing variable it did
			// not carry a definition for.
			def, err := im.vars.GetByName(ctx, item.Variable)
			if err != nil {
				return fmt.Errorf("unknown variable %q", item.Variable)
			}
			variableID = def.ID
		}
		_, err := im.suites.AddVariableItem(ctx, suiteID, variableID)
		return err

	case types.ItemCharPrompt:
		_, err := im.suites.AddCharPromptItem(ctx, suiteID, item.CharID, types.CharPromptSubType(item.SubType), item.EntryUID)
		return err
	}
	return fmt.Errorf("unknown item type %q", item.Type)
}
