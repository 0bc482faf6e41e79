package engine

import (
	"strings"

	"bte-graphql/internal/edgemap"
	"bte-graphql/internal/metakg"

	"github.com/tidwall/gjson"
)

// mapResponse turns a provider body into results using the operation's gjson
// paths. Hits whose queried input cannot be traced back to a dispatched id are
// dropped.
func mapResponse(op metakg.Operation, body []byte, inputs []string, back map[string]string) []ApiResult {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	hits := root
	if op.Response.Hits != "" {
		hits = root.Get(op.Response.Hits)
	}
	if !hits.Exists() {
		return nil
	}

	var results []ApiResult
	each := func(hit gjson.Result) {
		dispatched, ok := dispatchedInput(op.Response, hit, inputs, back)
		if !ok {
			return
		}
		results = append(results, mapHit(op, hit, dispatched)...)
	}
	if hits.IsArray() {
		hits.ForEach(func(_, hit gjson.Result) bool {
			each(hit)
			return true
		})
	} else {
		each(hits)
	}
	return results
}

func dispatchedInput(m metakg.ResponseMapping, hit gjson.Result, inputs []string, back map[string]string) (string, bool) {
	if m.Input == "" {
		if len(inputs) == 1 {
			return inputs[0], true
		}
		return "", false
	}
	value := hit.Get(m.Input).String()
	if id, ok := back[value]; ok {
		return id, true
	}
	return "", false
}

func mapHit(op metakg.Operation, hit gjson.Result, dispatched string) []ApiResult {
	outputs := flatten(hit.Get(op.Response.OutputID))
	if len(outputs) == 0 {
		return nil
	}
	var names []string
	if op.Response.Name != "" {
		names = flatten(hit.Get(op.Response.Name))
	}

	base := ApiResult{
		OutputType:        edgemap.Normalize(op.Association.OutputType),
		APIName:           op.Association.APIName,
		Source:            op.Association.Source,
		Predicate:         edgemap.Normalize(op.Association.Predicate),
		DispatchedInputID: dispatched,
	}
	if op.Response.PubMed != "" {
		base.PubMed = rawValue(hit.Get(op.Response.PubMed))
	}
	if op.Response.PMC != "" {
		base.PMC = rawValue(hit.Get(op.Response.PMC))
	}
	if op.Response.NGDOverall != "" {
		base.NGDOverall = number(hit.Get(op.Response.NGDOverall))
	}
	if op.Response.NGDStarred != "" {
		base.NGDStarred = number(hit.Get(op.Response.NGDStarred))
	}

	results := make([]ApiResult, 0, len(outputs))
	for i, out := range outputs {
		r := base
		r.OutputID = prefixed(op.Association.OutputIDNamespace, out)
		switch {
		case len(names) == len(outputs):
			r.Name = names[i]
		case len(names) == 1:
			r.Name = names[0]
		}
		results = append(results, r)
	}
	return results
}

// flatten returns the string values of a scalar or (nested) array result.
func flatten(r gjson.Result) []string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	if !r.IsArray() {
		if s := r.String(); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, flatten(v)...)
		return true
	})
	return out
}

func rawValue(r gjson.Result) any {
	if !r.Exists() {
		return nil
	}
	return r.Value()
}

func number(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

func prefixed(namespace, id string) string {
	if namespace == "" || strings.Contains(id, ":") {
		return id
	}
	return namespace + ":" + id
}
