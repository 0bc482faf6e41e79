// Package edgemap derives the reachable input type -> output type relationships,
// with their predicate and source API vocabularies, from catalog operations.
package edgemap

import (
	"fmt"
	"sort"
	"strings"

	"bte-graphql/internal/metakg"
)

// Normalize strips a namespace prefix, keeping the text after the last colon.
// Tokens without a colon are returned unchanged.
func Normalize(token string) string {
	token = strings.TrimSpace(token)
	if idx := strings.LastIndex(token, ":"); idx >= 0 {
		return token[idx+1:]
	}
	return token
}

// Edge holds the sorted, duplicate-free vocabularies of one input/output pair.
type Edge struct {
	Predicates []string
	APIs       []string
}

// EdgeMap is built once and read-only afterwards.
type EdgeMap struct {
	edges       map[string]map[string]Edge
	inputs      []string
	outputs     map[string][]string
	objectTypes []string
}

// Build accumulates every operation into the edge map. An operation with an
// empty type, predicate or API name fails the whole build.
func Build(ops []metakg.Operation) (*EdgeMap, error) {
	type sets struct {
		predicates map[string]struct{}
		apis       map[string]struct{}
	}
	acc := make(map[string]map[string]*sets)
	objectTypes := make(map[string]struct{})

	for i, op := range ops {
		in := Normalize(op.Association.InputType)
		out := Normalize(op.Association.OutputType)
		pred := Normalize(op.Association.Predicate)
		api := strings.TrimSpace(op.Association.APIName)

		var missing []string
		if in == "" {
			missing = append(missing, "input_type")
		}
		if out == "" {
			missing = append(missing, "output_type")
		}
		if pred == "" {
			missing = append(missing, "predicate")
		}
		if api == "" {
			missing = append(missing, "api_name")
		}
		if len(missing) > 0 {
			return nil, &metakg.ConfigurationError{
				Problems: []string{fmt.Sprintf("operation %d: missing %s", i, strings.Join(missing, ", "))},
			}
		}

		byOut, ok := acc[in]
		if !ok {
			byOut = make(map[string]*sets)
			acc[in] = byOut
		}
		s, ok := byOut[out]
		if !ok {
			s = &sets{predicates: map[string]struct{}{}, apis: map[string]struct{}{}}
			byOut[out] = s
		}
		s.predicates[pred] = struct{}{}
		s.apis[api] = struct{}{}
		objectTypes[in] = struct{}{}
		objectTypes[out] = struct{}{}
	}

	m := &EdgeMap{
		edges:   make(map[string]map[string]Edge, len(acc)),
		outputs: make(map[string][]string, len(acc)),
	}
	for in, byOut := range acc {
		m.inputs = append(m.inputs, in)
		m.edges[in] = make(map[string]Edge, len(byOut))
		for out, s := range byOut {
			m.outputs[in] = append(m.outputs[in], out)
			m.edges[in][out] = Edge{
				Predicates: sortedKeys(s.predicates),
				APIs:       sortedKeys(s.apis),
			}
		}
		sort.Strings(m.outputs[in])
	}
	sort.Strings(m.inputs)
	m.objectTypes = sortedKeys(objectTypes)
	return m, nil
}

// InputTypes returns the sorted edge-map keys.
func (m *EdgeMap) InputTypes() []string {
	return append([]string(nil), m.inputs...)
}

// OutputTypes returns the sorted output types reachable from in.
func (m *EdgeMap) OutputTypes(in string) []string {
	return append([]string(nil), m.outputs[in]...)
}

// ObjectTypes returns every type that appears as an input or an output.
func (m *EdgeMap) ObjectTypes() []string {
	return append([]string(nil), m.objectTypes...)
}

// Edge returns the vocabularies for one pair.
func (m *EdgeMap) Edge(in, out string) (Edge, bool) {
	byOut, ok := m.edges[in]
	if !ok {
		return Edge{}, false
	}
	e, ok := byOut[out]
	if !ok {
		return Edge{}, false
	}
	return Edge{
		Predicates: append([]string(nil), e.Predicates...),
		APIs:       append([]string(nil), e.APIs...),
	}, true
}

// Len returns the number of input/output pairs.
func (m *EdgeMap) Len() int {
	n := 0
	for _, outs := range m.outputs {
		n += len(outs)
	}
	return n
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
