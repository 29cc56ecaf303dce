package resolver

import (
	"strings"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/pkg/types"
)

// floorsForRange turns a chat-content range config into the ordered list of
// 1-based floor indices it covers, given the effective conversation length.
// All kinds clamp to [1, length]; a zero length yields no floors.
func floorsForRange(cfg types.RangeConfig, length int) []int {
	if length <= 0 {
		return nil
	}

	span := func(start, end int) []int {
		start = clampIndex(start, length)
		end = clampIndex(end, length)
		if start > end {
			start, end = end, start
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out
	}

	switch cfg.Kind {
	case types.RangeFixed:
		return span(cfg.Start, cfg.End)

	case types.RangeLatest:
		if cfg.Count <= 0 {
			return nil
		}
		return span(length-cfg.Count+1, length)

	case types.RangeSkipTake:
		end := length - cfg.Skip
		if end < 1 || cfg.Count <= 0 {
			return nil
		}
		return span(end-cfg.Count+1, end)

	case types.RangeStep:
		step := cfg.Step
		if step < 1 {
			step = 1
		}
		start := clampIndex(cfg.Start, length)
		var out []int
		for i := start; i <= length; i += step {
			out = append(out, i)
		}
		return out

	case types.RangePercentStart:
		n := percentCount(cfg.Percent, length)
		if n == 0 {
			return nil
		}
		return span(1, n)

	case types.RangePercentEnd:
		n := percentCount(cfg.Percent, length)
		if n == 0 {
			return nil
		}
		return span(length-n+1, length)

	case types.RangeExclude:
		exStart := clampIndex(cfg.ExcludeStart, length)
		exEnd := clampIndex(cfg.ExcludeEnd, length)
		if exStart > exEnd {
			exStart, exEnd = exEnd, exStart
		}
		var out []int
		for i := 1; i <= length; i++ {
			if i >= exStart && i <= exEnd {
				continue
			}
			out = append(out, i)
		}
		return out
	}
	return nil
}

// percentCount converts a 1-100 percentage into a floor count, rounding up
// so any non-zero percentage covers at least one floor.
func percentCount(percent, length int) int {
	if percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return length
	}
	n := (length*percent + 99) / 100
	if n > length {
		n = length
	}
	return n
}

// expandChatContent renders the conversation floors selected by a
// chat-content item into text, honoring the user-exclusion flag and the
// item's substitution chain. It returns the rendered text plus every floor
// index the selector touched (excluded user turns still count as touched
// for floor-range bookkeeping).
func expandChatContent(transcript chat.Transcript, chatID string, item *types.ChatContentItem, length int) (string, []int) {
	indices := floorsForRange(item.Range, length)

	var lines []string
	for _, idx := range indices {
		floor, ok := transcript.Floor(chatID, idx)
		if !ok {
			continue
		}
		if item.ExcludeUser && floor.IsUser {
			continue
		}
		lines = append(lines, formatFloor(floor))
	}

	text := strings.Join(lines, "\n")
	text = applyRegexChain(text, item.Regex)
	return text, indices
}

// formatFloor renders one conversation turn as "Speaker: text".
func formatFloor(floor types.Floor) string {
	if floor.Speaker == "" {
		return floor.Text
	}
	return floor.Speaker + ": " + floor.Text
}
