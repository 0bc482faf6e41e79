package gqlrequest

import "github.com/graphql-go/graphql/language/ast"

// SelectionDepth counts nested selection levels below field: `Gene { id }`
// has depth 1 and `Gene { Disease { id } }` has depth 2. Fragments are
// expanded; a fragment cycle is cut at the repeated spread.
func SelectionDepth(field *ast.Field, fragments map[string]ast.Definition) int {
	if field == nil {
		return 0
	}
	return selectionSetDepth(field.SelectionSet, fragments, 0, map[string]bool{})
}

func selectionSetDepth(set *ast.SelectionSet, fragments map[string]ast.Definition, current int, inFlight map[string]bool) int {
	if set == nil || len(set.Selections) == 0 {
		return current
	}

	maxDepth := current
	for _, selection := range set.Selections {
		var depth int
		switch sel := selection.(type) {
		case *ast.Field:
			if sel.SelectionSet == nil {
				depth = current + 1
			} else {
				depth = selectionSetDepth(sel.SelectionSet, fragments, current+1, inFlight)
			}
		case *ast.InlineFragment:
			depth = selectionSetDepth(sel.SelectionSet, fragments, current, inFlight)
		case *ast.FragmentSpread:
			if sel.Name == nil {
				continue
			}
			name := sel.Name.Value
			frag, ok := fragments[name].(*ast.FragmentDefinition)
			if !ok || inFlight[name] {
				continue
			}
			inFlight[name] = true
			depth = selectionSetDepth(frag.SelectionSet, fragments, current, inFlight)
			delete(inFlight, name)
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}
