package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/scrypster/loreline/pkg/types"
)

// Tag wire format: literal [TagName]content[/TagName] spans in free text,
// one per variable, order-independent, surrounding prose ignored.

// GenerateTagInstructions produces deterministic text instructing the model
// to wrap each enabled variable's output in its configured tag pair. Order
// follows the enabled-variable list order.
func GenerateTagInstructions(enabledVars []*types.VariableDefinition) string {
	if len(enabledVars) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Format your output using the following tags, one per requested value. ")
	b.WriteString("Wrap each value exactly as shown; any text outside the tags is ignored.\n")
	for _, def := range enabledVars {
		fmt.Fprintf(&b, "\n[%s]\n<%s content here>\n[/%s]\n", def.Tag, def.Name, def.Tag)
	}
	return b.String()
}

// ParseTags scans the response text for each variable's tag pair and
// extracts the inner content per match. A tag with no match contributes
// nothing; that is not an error. Whitespace directly inside the tags is
// trimmed.
func ParseTags(text string, enabledVars []*types.VariableDefinition) []types.TagResult {
	var results []types.TagResult
	for _, def := range enabledVars {
		tag := regexp.QuoteMeta(def.Tag)
		re, err := regexp.Compile(`(?s)\[` + tag + `\](.*?)\[/` + tag + `\]`)
		if err != nil {
			continue
		}
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			results = append(results, types.TagResult{
				Tag:     def.Tag,
				Content: strings.TrimSpace(match[1]),
			})
		}
	}
	return results
}

// CheckCompleteness returns the tags of enabled variables that produced no
// parse result. Missing tags are a warning for the caller to log, not a
// hard failure; partial results are still usable.
func CheckCompleteness(results []types.TagResult, enabledVars []*types.VariableDefinition) []string {
	found := make(map[string]bool, len(results))
	for _, r := range results {
		found[r.Tag] = true
	}
	var missing []string
	for _, def := range enabledVars {
		if !found[def.Tag] {
			missing = append(missing, def.Tag)
		}
	}
	return missing
}
