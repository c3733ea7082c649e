package finance

import (
	"context"
	"sort"
)

// Record is one user's financial data keyed by category name. Values are decoded JSON
// (numbers, strings, lists, nested maps) and are treated as opaque.
type Record map[string]any

// Has reports whether the record carries data for key.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Keys returns the record keys in category order, followed by any extra keys.
func (r Record) Keys() []string {
	out := make([]string, 0, len(r))
	seen := make(map[string]struct{}, len(r))
	for _, c := range allCategories {
		if r.Has(string(c)) {
			out = append(out, string(c))
			seen[string(c)] = struct{}{}
		}
	}
	var extra []string
	for k := range r {
		if _, ok := seen[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Provider returns the full financial record for a user.
type Provider interface {
	Fetch(ctx context.Context, userID string) (Record, error)
}
