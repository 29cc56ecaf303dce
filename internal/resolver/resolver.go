// Package resolver expands {{name}} / {{name@range}} macros against stored
// variable values and conversation floors, and resolves a suite's content
// items into one combined prompt string plus the floor range it covers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// FloorMacroName is the fixed macro addressing raw conversation floors by
// absolute index range, independent of any variable: {{chat@56-65}}.
const FloorMacroName = "chat"

// ErrNoContent is returned when a suite has no enabled content items to
// resolve.
var ErrNoContent = errors.New("suite has no visible content items")

// maxMacroPasses bounds innermost-first expansion so that values containing
// macro-shaped text cannot loop forever.
const maxMacroPasses = 10

// innermostMacro matches a macro whose body contains no nested braces, so
// repeated replacement resolves nested references innermost-first.
var innermostMacro = regexp.MustCompile(`\{\{([^{}@]+)(?:@([^{}]*))?\}\}`)

// Resolver expands macros and suite items. It reads variable values through
// the variable service and conversation floors through the transcript.
type Resolver struct {
	vars       *services.VariableService
	suites     *services.SuiteService
	transcript chat.Transcript
}

// New creates a resolver over the given collaborators.
func New(vars *services.VariableService, suites *services.SuiteService, transcript chat.Transcript) *Resolver {
	return &Resolver{vars: vars, suites: suites, transcript: transcript}
}

// Resolution is the output of resolving one suite: the combined prompt text
// and the floor range the chat-content items covered.
type Resolution struct {
	Prompt     string
	FloorRange string
}

// ResolveMacros expands every macro in text against the given chat.
// Unknown names resolve to the empty string with a warning; the text
// itself is otherwise preserved.
func (r *Resolver) ResolveMacros(ctx context.Context, chatID, text string) string {
	for pass := 0; pass < maxMacroPasses; pass++ {
		replaced := false
		text = innermostMacro.ReplaceAllStringFunc(text, func(match string) string {
			groups := innermostMacro.FindStringSubmatch(match)
			name := strings.TrimSpace(groups[1])
			spec := groups[2]
			replaced = true
			return r.resolveMacro(ctx, chatID, name, spec)
		})
		if !replaced {
			break
		}
	}
	return text
}

// resolveMacro resolves one macro reference: either the fixed floor macro
// or a variable by name.
func (r *Resolver) resolveMacro(ctx context.Context, chatID, name, spec string) string {
	if name == FloorMacroName {
		return r.resolveFloorMacro(chatID, spec)
	}

	def, err := r.vars.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: resolver: unknown macro {{%s}}, resolving to empty", name)
			return ""
		}
		log.Printf("resolver: failed to look up macro {{%s}}: %v", name, err)
		return ""
	}

	value, err := r.vars.GetValue(ctx, def.ID, chatID)
	if err != nil {
		log.Printf("resolver: failed to load value for {{%s}}: %v", name, err)
		return ""
	}

	out, err := RenderValue(value, spec)
	if err != nil {
		log.Printf("WARNING: resolver: bad range in {{%s@%s}}: %v", name, spec, err)
		return ""
	}
	return out
}

// RenderValue resolves a macro reference against one stored value. For a
// stack variable the range spec selects 1-based positions within the
// non-hidden entries, joined blank-line separated; for a replace variable
// any range spec is ignored and the current display value is returned.
func RenderValue(value *types.VariableValue, spec string) (string, error) {
	switch value.Mode {
	case types.ModeReplace:
		return value.DisplayValue(), nil

	case types.ModeStack:
		if spec == "" {
			return value.DisplayValue(), nil
		}
		visible := value.VisibleEntries()
		indices, err := parseRangeSpec(spec, len(visible))
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(indices))
		for _, i := range indices {
			parts = append(parts, visible[i-1].Content)
		}
		return strings.Join(parts, "\n\n"), nil
	}
	return "", nil
}

// ResolveFloorMacro renders the raw-floor macro body. Host macro callbacks
// use this directly with the argument text following "@".
func (r *Resolver) ResolveFloorMacro(chatID, spec string) string {
	return r.resolveFloorMacro(chatID, spec)
}

// resolveFloorMacro expands the raw-floor macro against the conversation.
func (r *Resolver) resolveFloorMacro(chatID, spec string) string {
	if chatID == "" {
		log.Printf("WARNING: resolver: floor macro used without an active chat, resolving to empty")
		return ""
	}
	length := r.transcript.Length(chatID)
	if spec == "" {
		spec = fmt.Sprintf("1-%d", length)
	}
	indices, err := parseRangeSpec(spec, length)
	if err != nil {
		log.Printf("WARNING: resolver: bad range in {{%s@%s}}: %v", FloorMacroName, spec, err)
		return ""
	}
	lines := make([]string, 0, len(indices))
	for _, idx := range indices {
		if floor, ok := r.transcript.Floor(chatID, idx); ok {
			lines = append(lines, formatFloor(floor))
		}
	}
	return strings.Join(lines, "\n")
}

// ResolveSuite walks a suite's visible content items in order: prompt items
// are macro-expanded and appended verbatim, chat-content items are expanded
// into the selected conversation text. chatLength is the effective
// conversation length the caller wants ranges computed against (snapshot or
// live). The derived floor range is the min-to-max union of floors touched
// by chat-content items, falling back to chatLength when the suite has
// none.
func (r *Resolver) ResolveSuite(ctx context.Context, suiteID, chatID string, chatLength int) (*Resolution, error) {
	items, err := r.suites.GetVisibleContentItems(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoContent
	}

	// Ranges never reach past what the transcript actually holds, even
	// when a stale snapshot length says otherwise.
	if live := r.transcript.Length(chatID); chatLength > live {
		chatLength = live
	}

	var parts []string
	minFloor, maxFloor := 0, 0
	for _, item := range items {
		switch item.Type {
		case types.ItemPrompt:
			parts = append(parts, r.ResolveMacros(ctx, chatID, item.Prompt.Content))

		case types.ItemChatContent:
			text, touched := expandChatContent(r.transcript, chatID, item.ChatContent, chatLength)
			if text != "" {
				parts = append(parts, text)
			}
			for _, idx := range touched {
				if minFloor == 0 || idx < minFloor {
					minFloor = idx
				}
				if idx > maxFloor {
					maxFloor = idx
				}
			}
		}
	}

	floorRange := ""
	if minFloor > 0 {
		floorRange = formatFloorRange(minFloor, maxFloor)
	} else {
		floorRange = formatFloorRange(chatLength, chatLength)
	}

	return &Resolution{
		Prompt:     strings.Join(parts, "\n\n"),
		FloorRange: floorRange,
	}, nil
}
