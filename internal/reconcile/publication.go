package reconcile

import (
	"fmt"
	"strconv"
	"strings"
)

// ShapeKind tags how an upstream field arrived.
type ShapeKind int

const (
	ShapeMissing ShapeKind = iota
	ShapeScalar
	ShapeList
	ShapeInvalid
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeScalar:
		return "scalar"
	case ShapeList:
		return "list"
	case ShapeInvalid:
		return "invalid"
	default:
		return "missing"
	}
}

// Shape is the typed view of a loosely-shaped upstream value.
type Shape struct {
	Kind   ShapeKind
	Values []string
}

// ShapeOf classifies a decoded JSON value. Strings and numbers are scalars,
// arrays of them are lists; anything else (objects, nested lists, bools) is
// invalid.
func ShapeOf(v any) Shape {
	if v == nil {
		return Shape{Kind: ShapeMissing}
	}
	if s, ok := scalarString(v); ok {
		if s == "" {
			return Shape{Kind: ShapeMissing}
		}
		return Shape{Kind: ShapeScalar, Values: []string{s}}
	}

	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	default:
		return Shape{Kind: ShapeInvalid}
	}

	values := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := scalarString(item)
		if !ok {
			return Shape{Kind: ShapeInvalid}
		}
		if s != "" {
			values = append(values, s)
		}
	}
	return Shape{Kind: ShapeList, Values: values}
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case fmt.Stringer:
		return strings.TrimSpace(x.String()), true
	default:
		return "", false
	}
}

// Tag prefixes every value with kind, replacing a prefix it may already carry
// ("PMID:123" becomes "pubmed:123").
func (s Shape) Tag(kind string) []string {
	out := make([]string, 0, len(s.Values))
	for _, v := range s.Values {
		if idx := strings.LastIndex(v, ":"); idx >= 0 {
			v = v[idx+1:]
		}
		if v == "" {
			continue
		}
		out = append(out, kind+":"+v)
	}
	return out
}
