// Package correlation sorts and truncates relationship results by their
// relatedness score.
package correlation

import (
	"fmt"
	"sort"

	"bte-graphql/internal/reconcile"
)

// SortKey names a score to order by.
type SortKey string

const (
	SortNGDOverall SortKey = "ngd_overall"
	SortNGDStarred SortKey = "ngd_starred"
)

// Missing is the score given to records without one. It sorts last.
const Missing = -1.0

// SortKeys lists the supported keys in enum order.
func SortKeys() []SortKey {
	return []SortKey{SortNGDOverall, SortNGDStarred}
}

// ParseSortKey validates a sort key name.
func ParseSortKey(name string) (SortKey, error) {
	for _, key := range SortKeys() {
		if string(key) == name {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", name)
}

// Options controls Filter. A zero SortBy leaves order unchanged; a
// non-positive MaxResults keeps every record.
type Options struct {
	SortBy     SortKey
	MaxResults int
}

// Active reports whether the options change anything.
func (o Options) Active() bool {
	return o.SortBy != "" || o.MaxResults > 0
}

// Score returns the record's value for key, or Missing.
func Score(rec reconcile.ObjectRecord, key SortKey) float64 {
	if rec.Correlation == nil {
		return Missing
	}
	var v *float64
	switch key {
	case SortNGDOverall:
		v = rec.Correlation.NGDOverall
	case SortNGDStarred:
		v = rec.Correlation.NGDStarred
	}
	if v == nil {
		return Missing
	}
	return *v
}

// Filter returns records sorted ascending by score with missing scores last,
// truncated to MaxResults. The input slice is not modified.
func Filter(records []reconcile.ObjectRecord, opts Options) []reconcile.ObjectRecord {
	out := make([]reconcile.ObjectRecord, len(records))
	copy(out, records)

	if opts.SortBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := Score(out[i], opts.SortBy), Score(out[j], opts.SortBy)
			switch {
			case a == Missing:
				return false
			case b == Missing:
				return true
			default:
				return a < b
			}
		})
	}
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out
}

// Apply runs Filter on every bucket.
func Apply(buckets reconcile.Buckets, opts Options) reconcile.Buckets {
	if !opts.Active() {
		return buckets
	}
	out := make(reconcile.Buckets, len(buckets))
	for id, records := range buckets {
		out[id] = Filter(records, opts)
	}
	return out
}
