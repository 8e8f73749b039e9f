package archive

import (
	"sort"
	"strings"
)

// naturalKey mirrors the ordering key (group, digit runs, lowered name):
// names with at least one digit run sort in group 0, the rest in group 1.
type naturalKey struct {
	group  int
	runs   []string
	folded string
}

func newNaturalKey(name string) naturalKey {
	var runs []string
	start := -1
	for i := 0; i < len(name); i++ {
		if isDigit(name[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, trimLeadingZeros(name[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, trimLeadingZeros(name[start:]))
	}
	group := 1
	if len(runs) > 0 {
		group = 0
	}
	return naturalKey{group: group, runs: runs, folded: strings.ToLower(name)}
}

func (k naturalKey) less(o naturalKey) bool {
	if k.group != o.group {
		return k.group < o.group
	}
	for i := 0; i < len(k.runs) && i < len(o.runs); i++ {
		if c := compareNumeric(k.runs[i], o.runs[i]); c != 0 {
			return c < 0
		}
	}
	if len(k.runs) != len(o.runs) {
		return len(k.runs) < len(o.runs)
	}
	return k.folded < o.folded
}

// NaturalSort orders names in place so that "page2.png" precedes "page10.png".
func NaturalSort(names []string) {
	keys := make(map[string]naturalKey, len(names))
	for _, n := range names {
		if _, ok := keys[n]; !ok {
			keys[n] = newNaturalKey(n)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return keys[names[i]].less(keys[names[j]])
	})
}

// compareNumeric compares two digit strings without leading zeros by value,
// so arbitrarily long runs never overflow.
func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trimLeadingZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
