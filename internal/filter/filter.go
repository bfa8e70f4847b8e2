// Package filter computes filtered subsets and grouped aggregates of financial
// records. Every function here is pure: inputs are never mutated and the same
// input always yields the same output.
package filter

import (
	"strings"
	"time"

	"fatture/internal/core"
)

// All is the select value meaning "no constraint".
const All = "all"

// State is the expense page filter. The zero value filters nothing.
type State struct {
	Category      string
	PaymentMethod core.PaymentMethod
	From          core.Date
	To            core.Date
	BusinessOnly  bool
}

// IsZero reports whether s imposes no constraint.
func (s State) IsZero() bool {
	return unset(s.Category) && unset(string(s.PaymentMethod)) &&
		unset(string(s.From)) && unset(string(s.To)) && !s.BusinessOnly
}

func unset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

// Records returns the expenses matching every set field of s, in input order.
// Date bounds are inclusive. A bound that does not parse is ignored; when a
// valid bound is set, records whose own date does not parse are excluded.
func Records(records []core.Expense, s State) []core.Expense {
	from, hasFrom := bound(s.From)
	to, hasTo := bound(s.To)

	out := make([]core.Expense, 0, len(records))
	for _, r := range records {
		if !unset(s.Category) && r.CategoryID != s.Category && r.Category != s.Category {
			continue
		}
		if !unset(string(s.PaymentMethod)) && r.PaymentMethod != s.PaymentMethod {
			continue
		}
		if s.BusinessOnly && !r.IsBusinessExpense {
			continue
		}
		if hasFrom || hasTo {
			t, err := r.Date.Time()
			if err != nil {
				continue
			}
			if hasFrom && t.Before(from) {
				continue
			}
			if hasTo && t.After(to) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func bound(d core.Date) (time.Time, bool) {
	if unset(string(d)) {
		return time.Time{}, false
	}
	t, err := d.Time()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// InRange reports whether d falls within [from, to]; unset bounds are open.
func InRange(d core.Date, from, to core.Date) bool {
	f, hasFrom := bound(from)
	t, hasTo := bound(to)
	if !hasFrom && !hasTo {
		return true
	}
	v, err := d.Time()
	if err != nil {
		return false
	}
	return !(hasFrom && v.Before(f)) && !(hasTo && v.After(t))
}
