package gqlrequest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		q := url.Values{}
		q.Set("query", `{ Gene(ids: ["NCBIGene:1017"]) { id } }`)
		q.Set("operationName", "G")
		q.Set("variables", `{"ids":["a"]}`)
		req := httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil)

		env, err := DecodeEnvelope(req)
		require.NoError(t, err)
		assert.Equal(t, "G", env.OperationName)
		assert.Equal(t, len(env.Query), env.DocumentSizeBytes)
		assert.Equal(t, []interface{}{"a"}, env.Variables["ids"])
	})

	t.Run("post json rewinds body", func(t *testing.T) {
		body := `{"query":"{ Gene(ids: $ids) { id } }","variables":{"ids":["x","y"]}}`
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		env, err := DecodeEnvelope(req)
		require.NoError(t, err)
		assert.Equal(t, "{ Gene(ids: $ids) { id } }", env.Query)

		again, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(again))
	})

	t.Run("post graphql", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{ Gene(ids: []) { id } }"))
		req.Header.Set("Content-Type", "application/graphql")

		env, err := DecodeEnvelope(req)
		require.NoError(t, err)
		assert.Equal(t, "{ Gene(ids: []) { id } }", env.Query)
	})

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		_, err := DecodeEnvelope(req)
		assert.Error(t, err)
	})
}

func TestAnalyze(t *testing.T) {
	query := `
query Related($ids: [String]!) {
  Gene(ids: ["NCBIGene:1017", "NCBIGene:1018"]) {
    id
    ...diseases
  }
  Disease(ids: $ids) {
    id
    correlation { ngd_overall }
  }
}
fragment diseases on Gene {
  Disease(predicates: [related_to]) {
    id
    ChemicalSubstance { id label }
  }
}`
	a := Analyze(Envelope{
		Query:         query,
		OperationName: "Related",
		Variables:     map[string]interface{}{"ids": []interface{}{"MONDO:1", "MONDO:2", "MONDO:3"}},
	})
	require.NoError(t, a.Err)

	assert.Equal(t, "Related", a.OperationName)
	assert.Equal(t, "query", a.OperationType)
	assert.Equal(t, []string{"Gene", "Disease"}, a.RootTypes)
	assert.Equal(t, 5, a.IDCount)
	assert.Equal(t, 2, a.Relationships)
	assert.Equal(t, 3, a.SelectionDepth)
	assert.Equal(t, 1, a.VariableCount)
	assert.Equal(t, 11, a.FieldCount)
	assert.Len(t, a.OperationHash, 64)
}

func TestAnalyzeHashIgnoresWhitespace(t *testing.T) {
	a := Analyze(Envelope{Query: "{ Gene(ids: [\"a\"]) { id } }"})
	b := Analyze(Envelope{Query: "{\n  Gene(ids: [\"a\"]) {\n    id\n  }\n}"})
	require.NoError(t, a.Err)
	assert.Equal(t, a.OperationHash, b.OperationHash)
	assert.Equal(t, anonymousOperationName, a.OperationName)
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"syntax", Envelope{Query: "{ Gene("}},
		{"unknown operation", Envelope{Query: "query A { Gene(ids: []) { id } }", OperationName: "B"}},
		{"ambiguous", Envelope{Query: "query A { x } query B { y }"}},
		{"fragments only", Envelope{Query: "fragment f on Gene { id }"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Analyze(tt.env).Err)
		})
	}

	empty := Analyze(Envelope{})
	assert.NoError(t, empty.Err)
	assert.Empty(t, empty.RootTypes)
}

func TestAnalyzeFragmentCycle(t *testing.T) {
	a := Analyze(Envelope{Query: `
{ Gene(ids: ["a"]) { ...a } }
fragment a on Gene { id ...b }
fragment b on Gene { label ...a }`})
	require.NoError(t, a.Err)
	assert.Equal(t, 3, a.FieldCount)
}
