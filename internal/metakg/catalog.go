package metakg

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports a catalog that cannot be turned into a schema.
// It is fatal at startup.
type ConfigurationError struct {
	Source   string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	src := e.Source
	if src == "" {
		src = "catalog"
	}
	return fmt.Sprintf("invalid operation catalog %s: %s", src, strings.Join(e.Problems, "; "))
}

// Catalog is a read-only index over operations. It is built once and shared by
// every resolution function.
type Catalog struct {
	ops  []Operation
	apis []string
}

// New validates ops and builds a catalog. A single malformed operation fails the
// whole build.
func New(ops []Operation) (*Catalog, error) {
	var problems []string
	for i, op := range ops {
		if missing := op.Association.missingFields(); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("operation %d: missing %s", i, strings.Join(missing, ", ")))
		}
		if op.BatchSize < 0 {
			problems = append(problems, fmt.Sprintf("operation %d: batch_size must be >= 0", i))
		}
	}
	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}

	copied := make([]Operation, len(ops))
	copy(copied, ops)

	seen := make(map[string]struct{})
	apis := make([]string, 0)
	for _, op := range copied {
		if _, ok := seen[op.Association.APIName]; ok {
			continue
		}
		seen[op.Association.APIName] = struct{}{}
		apis = append(apis, op.Association.APIName)
	}
	sort.Strings(apis)

	return &Catalog{ops: copied, apis: apis}, nil
}

// Operations returns a copy of every operation in load order.
func (c *Catalog) Operations() []Operation {
	if c == nil {
		return nil
	}
	out := make([]Operation, len(c.ops))
	copy(out, c.ops)
	return out
}

// Len returns the number of operations.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ops)
}

// APIs returns the sorted distinct API names.
func (c *Catalog) APIs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.apis...)
}

// Select returns the operations for which match reports true, in load order.
func (c *Catalog) Select(match func(Operation) bool) []Operation {
	if c == nil {
		return nil
	}
	var out []Operation
	for _, op := range c.ops {
		if match == nil || match(op) {
			out = append(out, op)
		}
	}
	return out
}
