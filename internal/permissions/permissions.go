// Package permissions holds the per-session category visibility flags that decide which parts
// of a financial record the assistant may see.
package permissions

import (
	"errors"
	"strings"
	"time"

	"github.com/ent0n29/financeai/internal/finance"
)

// ErrMissingCategory is returned when an update names no category.
var ErrMissingCategory = errors.New("category is required")

// Set maps a category name to whether it is visible to the assistant.
type Set map[string]bool

// Action describes a permission change.
type Action string

const (
	ActionGranted Action = "granted"
	ActionRevoked Action = "revoked"
)

// Change is one entry of a session's permission log.
type Change struct {
	Category string    `json:"category"`
	Action   Action    `json:"action"`
	Source   string    `json:"source,omitempty"`
	At       time.Time `json:"timestamp"`
}

// Default returns a set with every category visible.
func Default() Set {
	s := make(Set, len(finance.Categories()))
	for _, c := range finance.Categories() {
		s[string(c)] = true
	}
	return s
}

// GetOrInit returns a copy of current with every known category present. A nil or empty set
// becomes the all-visible default; known categories missing from a stored set are visible.
func GetOrInit(current Set) Set {
	out := Default()
	for k, v := range current {
		out[k] = v
	}
	return out
}

// Update initialises current if needed and overwrites exactly one category. The category name
// is not checked against the known set. The returned change is stamped with now.
func Update(current Set, category string, allowed bool, now time.Time) (Set, Change, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, Change{}, ErrMissingCategory
	}
	out := GetOrInit(current)
	out[category] = allowed

	action := ActionRevoked
	if allowed {
		action = ActionGranted
	}
	return out, Change{Category: category, Action: action, At: now.UTC()}, nil
}

// Allowed reports whether key is visible. Missing keys are not visible; call GetOrInit first
// to apply defaults.
func (s Set) Allowed(key string) bool {
	return s[key]
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Filter returns the accessible view of record: every key that perms allows and record
// contains, with its value copied as-is. Keys absent from the record are skipped.
func Filter(record finance.Record, perms Set) finance.Record {
	out := make(finance.Record, len(perms))
	for key, allowed := range perms {
		if !allowed {
			continue
		}
		v, ok := record[key]
		if !ok {
			continue
		}
		out[key] = v
	}
	return out
}
