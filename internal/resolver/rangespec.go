package resolver

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRangeSpec turns a macro range spec ("3", "1-5,8", "2-end", "end-4")
// into an ordered, de-duplicated list of 1-based indices against a sequence
// of the given length. Out-of-bounds indices are clamped to [1, length] and
// inverted pairs are swapped. An empty length yields no indices.
func parseRangeSpec(spec string, length int) ([]int, error) {
	if length <= 0 {
		return nil, nil
	}

	var indices []int
	seen := make(map[int]bool)
	push := func(i int) {
		if !seen[i] {
			seen[i] = true
			indices = append(indices, i)
		}
	}

	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		parts := strings.SplitN(token, "-", 2)
		start, err := parseBound(parts[0], length)
		if err != nil {
			return nil, fmt.Errorf("bad range token %q: %w", token, err)
		}

		if len(parts) == 1 {
			push(clampIndex(start, length))
			continue
		}

		end, err := parseBound(parts[1], length)
		if err != nil {
			return nil, fmt.Errorf("bad range token %q: %w", token, err)
		}

		start = clampIndex(start, length)
		end = clampIndex(end, length)
		if start > end {
			start, end = end, start
		}
		for i := start; i <= end; i++ {
			push(i)
		}
	}
	return indices, nil
}

// parseBound parses one side of a range token: a positive integer or the
// keyword "end".
func parseBound(s string, length int) (int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "end") {
		return length, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number or 'end': %q", s)
	}
	return n, nil
}

func clampIndex(i, length int) int {
	if i < 1 {
		return 1
	}
	if i > length {
		return length
	}
	return i
}

// formatFloorRange renders a covered floor interval as "min-max", or a
// single number when min equals max.
func formatFloorRange(min, max int) string {
	if min == max {
		return strconv.Itoa(min)
	}
	return fmt.Sprintf("%d-%d", min, max)
}
