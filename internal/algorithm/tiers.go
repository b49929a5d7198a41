package algorithm

import (
	"strings"

	"golang.org/x/text/cases"
)

// TierResolver maps membership tier labels to a maximum allowance
type TierResolver struct {
	allowances map[string]int
}

// NewTierResolver creates a resolver over the given label -> allowance table.
// Labels are compared case-insensitively.
func NewTierResolver(table map[string]int) *TierResolver {
	allowances := make(map[string]int, len(table))
	for label, allowance := range table {
		key := normalizeLabel(label)
		if key == "" {
			continue
		}
		if current, ok := allowances[key]; !ok || allowance > current {
			allowances[key] = allowance
		}
	}
	return &TierResolver{allowances: allowances}
}

// Resolve returns the largest allowance among the recognized labels, or 0 when
// no label is recognized. Unknown labels contribute nothing.
func (r *TierResolver) Resolve(labels []string) int {
	best := 0
	for _, label := range labels {
		if allowance, ok := r.allowances[normalizeLabel(label)]; ok && allowance > best {
			best = allowance
		}
	}
	return best
}

// Allowance returns the allowance configured for a single label
func (r *TierResolver) Allowance(label string) (int, bool) {
	allowance, ok := r.allowances[normalizeLabel(label)]
	return allowance, ok
}

// Tiers returns a copy of the normalized table
func (r *TierResolver) Tiers() map[string]int {
	out := make(map[string]int, len(r.allowances))
	for k, v := range r.allowances {
		out[k] = v
	}
	return out
}

// normalizeLabel folds case with a fresh Caser; Casers are stateful and must
// not be shared between goroutines.
func normalizeLabel(label string) string {
	return cases.Fold().String(strings.TrimSpace(label))
}
