// Package refs finds typed entity references in assistant text, checks
// them against the store and resolves them into embeddable payloads.
package refs

import (
	"regexp"
	"sort"
	"strings"

	"journalagent/store"
)

// InlineReference is one reference tag found in text.
type InlineReference struct {
	Kind     store.Kind
	ID       string
	Position int
	Raw      string
}

var (
	tagPattern    = regexp.MustCompile(`<(trade|note|strategy)-ref\s+id\s*=\s*"([^"]+)"\s*/?>`)
	legacyPattern = regexp.MustCompile(`\[(trade|note|strategy):([A-Za-z0-9_.\-]+)\]`)
)

// Parse returns every reference in text ordered by position. Both the tag
// form <trade-ref id="..."/> and the legacy [trade:ID] form are accepted.
func Parse(text string) []InlineReference {
	var out []InlineReference
	for _, re := range []*regexp.Regexp{tagPattern, legacyPattern} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			id := strings.TrimSpace(text[m[4]:m[5]])
			if id == "" {
				continue
			}
			out = append(out, InlineReference{
				Kind:     store.Kind(text[m[2]:m[3]]),
				ID:       id,
				Position: m[0],
				Raw:      text[m[0]:m[1]],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Unique groups reference ids by kind, first occurrence first.
func Unique(list []InlineReference) map[store.Kind][]string {
	out := make(map[store.Kind][]string)
	seen := make(map[store.Kind]map[string]bool)
	for _, r := range list {
		if seen[r.Kind] == nil {
			seen[r.Kind] = make(map[string]bool)
		}
		if seen[r.Kind][r.ID] {
			continue
		}
		seen[r.Kind][r.ID] = true
		out[r.Kind] = append(out[r.Kind], r.ID)
	}
	return out
}

// Strip removes every tag whose id is listed as invalid for its kind.
// Tags are removed by exact match of their raw text.
func Strip(text string, invalid map[store.Kind][]string) string {
	if len(invalid) == 0 {
		return text
	}
	bad := make(map[store.Kind]map[string]bool, len(invalid))
	for k, ids := range invalid {
		bad[k] = make(map[string]bool, len(ids))
		for _, id := range ids {
			bad[k][id] = true
		}
	}
	for _, r := range Parse(text) {
		if bad[r.Kind][r.ID] {
			text = strings.ReplaceAll(text, r.Raw, "")
		}
	}
	return text
}
