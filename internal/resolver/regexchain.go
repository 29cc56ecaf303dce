package resolver

import (
	"log"
	"regexp"

	"github.com/scrypster/loreline/pkg/types"
)

// tierOrder is the provenance order applied to rules the user has not
// explicitly positioned.
var tierOrder = []types.RegexSource{
	types.RegexCustom,
	types.RegexGlobal,
	types.RegexPreset,
	types.RegexScoped,
}

// applyRegexChain runs text through the enabled substitution rules of a
// regex config. Rules named in cfg.Order run first, in that order; the
// remaining enabled rules follow in tier order (custom, global, preset,
// scoped), preserving their relative positions within each tier. Rules that
// fail to compile are logged and skipped.
func applyRegexChain(text string, cfg types.RegexConfig) string {
	if len(cfg.Rules) == 0 {
		return text
	}

	byID := make(map[string]types.RegexRule, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		byID[rule.ID] = rule
	}

	used := make(map[string]bool, len(cfg.Rules))
	chain := make([]types.RegexRule, 0, len(cfg.Rules))

	for _, id := range cfg.Order {
		rule, ok := byID[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		if rule.Enabled {
			chain = append(chain, rule)
		}
	}
	for _, tier := range tierOrder {
		for _, rule := range cfg.Rules {
			if used[rule.ID] || rule.Source != tier || !rule.Enabled {
				continue
			}
			used[rule.ID] = true
			chain = append(chain, rule)
		}
	}

	for _, rule := range chain {
		re, err := regexp.Compile(rule.Find)
		if err != nil {
			log.Printf("resolver: skipping regex rule %s, bad pattern %q: %v", rule.ID, rule.Find, err)
			continue
		}
		text = re.ReplaceAllString(text, rule.Replace)
	}
	return text
}
