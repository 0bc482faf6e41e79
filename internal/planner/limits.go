package planner

import (
	"fmt"

	"bte-graphql/internal/gqlrequest"

	"github.com/graphql-go/graphql/language/ast"
)

// DefaultMaxDepth bounds how deep relationship fields may nest below a root field.
const DefaultMaxDepth = 5

// PlanLimits defines limits applied before a root field fans out.
type PlanLimits struct {
	MaxDepth int
}

// ValidateDepth rejects a root field whose selection is deeper than limits allow.
// A zero MaxDepth disables the check.
func ValidateDepth(field *ast.Field, fragments map[string]ast.Definition, limits PlanLimits) error {
	if limits.MaxDepth <= 0 {
		return nil
	}
	if depth := gqlrequest.SelectionDepth(field, fragments); depth > limits.MaxDepth {
		return fmt.Errorf("query exceeds maximum depth of %d (depth: %d)", limits.MaxDepth, depth)
	}
	return nil
}
