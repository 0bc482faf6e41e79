// Package setutil holds small helpers for ordered string sets built from
// GraphQL list arguments and identifier lists.
package setutil

import "fmt"

// Unique removes empty strings and duplicates, keeping first-seen order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Strings normalizes a decoded list argument ([]string or []interface{}) into
// strings. Nil and empty items are dropped; non-string items are formatted.
// Anything that is not a list yields nil.
func Strings(input interface{}) []string {
	var out []string
	switch v := input.(type) {
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range v {
			if item == nil {
				continue
			}
			if s := fmt.Sprint(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
