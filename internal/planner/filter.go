// Package planner selects catalog operations for a relationship query and turns
// them into dispatched calls with an id backmap.
package planner

import (
	"bte-graphql/internal/edgemap"
	"bte-graphql/internal/metakg"
)

// Criteria constrains operation selection. Empty Predicates or APIs match
// everything; when both are given an operation must satisfy both.
type Criteria struct {
	InputType  string
	OutputType string
	Predicates []string
	APIs       []string
}

// Matches reports whether op satisfies every provided constraint. Types and
// predicates are compared after namespace normalization, API names verbatim.
func (c Criteria) Matches(op metakg.Operation) bool {
	if c.InputType != "" && edgemap.Normalize(op.Association.InputType) != edgemap.Normalize(c.InputType) {
		return false
	}
	if c.OutputType != "" && edgemap.Normalize(op.Association.OutputType) != edgemap.Normalize(c.OutputType) {
		return false
	}
	if len(c.Predicates) > 0 && !containsNormalized(c.Predicates, op.Association.Predicate) {
		return false
	}
	if len(c.APIs) > 0 && !contains(c.APIs, op.Association.APIName) {
		return false
	}
	return true
}

// SelectOperations returns the catalog operations matching c, in catalog order.
func SelectOperations(catalog *metakg.Catalog, c Criteria) []metakg.Operation {
	return catalog.Select(c.Matches)
}

func containsNormalized(values []string, target string) bool {
	target = edgemap.Normalize(target)
	for _, v := range values {
		if edgemap.Normalize(v) == target {
			return true
		}
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
