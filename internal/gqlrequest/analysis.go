package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

const anonymousOperationName = "<anonymous>"

// Analysis is the parsed view of one request.
type Analysis struct {
	Envelope Envelope

	OperationName string
	OperationType string
	OperationHash string

	// RootTypes are the semantic types queried at the top level, in document order.
	RootTypes []string
	// IDCount is the number of literal ids passed to root fields. Ids supplied
	// through variables are counted when the variable is a list.
	IDCount int
	// Relationships is the number of relationship fields in the operation.
	Relationships int
	// SelectionDepth is the deepest root-field selection, measured the way
	// the depth limit measures it.
	SelectionDepth int
	FieldCount     int
	VariableCount  int

	Err error
}

// AnalyzeRequest decodes and analyzes an HTTP request.
func AnalyzeRequest(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	if err != nil {
		return &Analysis{Envelope: env, Err: err}
	}
	return Analyze(env)
}

// Analyze parses the envelope's document and walks the selected operation.
// A document that does not parse yields an Analysis with Err set; the GraphQL
// handler reports the error to the client.
func Analyze(env Envelope) *Analysis {
	a := &Analysis{Envelope: env}
	if strings.TrimSpace(env.Query) == "" {
		return a
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(env.Query), Name: "graphql"}),
	})
	if err != nil {
		a.Err = err
		return a
	}

	fragments := make(map[string]ast.Definition)
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		case *ast.OperationDefinition:
			operations = append(operations, d)
		}
	}

	op, err := selectOperation(operations, env.OperationName)
	if err != nil {
		a.Err = err
		return a
	}

	a.OperationName = anonymousOperationName
	if op.Name != nil && op.Name.Value != "" {
		a.OperationName = op.Name.Value
	}
	a.OperationType = string(op.Operation)
	a.VariableCount = len(op.VariableDefinitions)
	a.OperationHash = hashOperation(env.Query, a.OperationName)

	w := walker{fragments: fragments, inFlight: map[string]bool{}}
	for _, field := range w.fields(op.SelectionSet) {
		name := field.Name.Value
		if strings.HasPrefix(name, "__") {
			continue
		}
		a.RootTypes = append(a.RootTypes, name)
		a.IDCount += countIDs(field, env.Variables)
		if depth := SelectionDepth(field, fragments); depth > a.SelectionDepth {
			a.SelectionDepth = depth
		}
	}
	a.FieldCount, a.Relationships = w.count(op.SelectionSet, 0)
	return a
}

func selectOperation(ops []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		for _, op := range ops {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(ops) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return ops[0], nil
	}
	return nil, fmt.Errorf("operationName is required when request has multiple operations")
}

type walker struct {
	fragments map[string]ast.Definition
	inFlight  map[string]bool
}

// fields flattens a selection set through fragments into its fields.
func (w walker) fields(set *ast.SelectionSet) []*ast.Field {
	if set == nil {
		return nil
	}
	var out []*ast.Field
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			out = append(out, sel)
		case *ast.InlineFragment:
			out = append(out, w.fields(sel.SelectionSet)...)
		case *ast.FragmentSpread:
			frag := w.fragment(sel)
			if frag == nil {
				continue
			}
			w.inFlight[frag.Name.Value] = true
			out = append(out, w.fields(frag.SelectionSet)...)
			delete(w.inFlight, frag.Name.Value)
		}
	}
	return out
}

func (w walker) fragment(spread *ast.FragmentSpread) *ast.FragmentDefinition {
	if spread.Name == nil || w.inFlight[spread.Name.Value] {
		return nil
	}
	frag, _ := w.fragments[spread.Name.Value].(*ast.FragmentDefinition)
	return frag
}

// count returns all fields and the relationship fields below the root level.
func (w walker) count(set *ast.SelectionSet, level int) (fields, relationships int) {
	for _, field := range w.fields(set) {
		fields++
		if field.SelectionSet == nil {
			continue
		}
		if level > 0 && field.Name.Value != "correlation" {
			relationships++
		}
		f, r := w.count(field.SelectionSet, level+1)
		fields += f
		relationships += r
	}
	return fields, relationships
}

func countIDs(field *ast.Field, variables map[string]interface{}) int {
	for _, arg := range field.Arguments {
		if arg.Name == nil || arg.Name.Value != "ids" {
			continue
		}
		switch v := arg.Value.(type) {
		case *ast.ListValue:
			return len(v.Values)
		case *ast.StringValue:
			return 1
		case *ast.Variable:
			if v.Name == nil {
				return 0
			}
			switch ids := variables[v.Name.Value].(type) {
			case []interface{}:
				return len(ids)
			case string:
				return 1
			}
		}
	}
	return 0
}

func hashOperation(query, operationName string) string {
	h := sha256.New()
	for _, part := range []string{strings.Join(strings.Fields(query), " "), operationName} {
		_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
