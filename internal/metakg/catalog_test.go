package metakg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(in, out, pred, api string) Operation {
	return Operation{Association: Association{
		InputType:        in,
		OutputType:       out,
		Predicate:        pred,
		APIName:          api,
		InputIDNamespace: "NCBIGene",
	}}
}

func TestNew_RejectsMalformedOperations(t *testing.T) {
	_, err := New([]Operation{
		op("Gene", "Disease", "related_to", "apiX"),
		{Association: Association{InputType: "Gene"}},
	})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, cfgErr.Problems, 1)
	assert.Contains(t, cfgErr.Problems[0], "operation 1")
	assert.Contains(t, cfgErr.Problems[0], "output_type")
	assert.Contains(t, cfgErr.Problems[0], "api_name")
}

func TestCatalog_IndexIsReadOnly(t *testing.T) {
	ops := []Operation{
		op("Gene", "Disease", "related_to", "MyDisease.info API"),
		op("Gene", "ChemicalSubstance", "related_to", "MyChem.info API"),
		op("Disease", "Gene", "related_to", "MyDisease.info API"),
	}
	catalog, err := New(ops)
	require.NoError(t, err)

	ops[0].Association.APIName = "mutated"
	assert.Equal(t, "MyDisease.info API", catalog.Operations()[0].Association.APIName)

	listed := catalog.Operations()
	listed[1].Association.APIName = "mutated"
	assert.Equal(t, "MyChem.info API", catalog.Operations()[1].Association.APIName)

	assert.Equal(t, 3, catalog.Len())
	assert.Equal(t, []string{"MyChem.info API", "MyDisease.info API"}, catalog.APIs())
}

func TestCatalog_Select(t *testing.T) {
	catalog, err := New([]Operation{
		op("Gene", "Disease", "related_to", "a"),
		op("Gene", "Disease", "affects", "b"),
		op("Disease", "Gene", "related_to", "a"),
	})
	require.NoError(t, err)

	got := catalog.Select(func(o Operation) bool { return o.Association.InputType == "Gene" })
	require.Len(t, got, 2)
	assert.Equal(t, "related_to", got[0].Association.Predicate)
	assert.Equal(t, "affects", got[1].Association.Predicate)

	assert.Len(t, catalog.Select(nil), 3)

	var nilCatalog *Catalog
	assert.Nil(t, nilCatalog.Select(nil))
	assert.Equal(t, 0, nilCatalog.Len())
}

func TestDecode_YAMLAndJSON(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		ops, err := LoadFile(filepath.Join("testdata", "catalog.yaml"))
		require.NoError(t, err)
		require.Len(t, ops, 3)

		first := ops[0]
		assert.Equal(t, "biolink:Gene", first.Association.InputType)
		assert.Equal(t, "biolink:Disease", first.Association.OutputType)
		assert.Equal(t, "NCBIGene", first.Association.InputIDNamespace)
		assert.True(t, first.SupportsBatch)
		assert.Equal(t, "POST", first.Query.HTTPMethod())
		assert.Equal(t, "hits", first.Response.Hits)
	})

	t.Run("json", func(t *testing.T) {
		doc := `{"operations":[{"association":{"input_type":"Gene","output_type":"Disease","predicate":"related_to","api_name":"apiX","input_id":"NCBIGene"},"query":{"server":"https://example.org"},"response":{"output_id":"_id"}}]}`
		ops, err := Decode(strings.NewReader(doc))
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, "GET", ops[0].Query.HTTPMethod())
		assert.Equal(t, ",", ops[0].Query.Separator())
	})

	t.Run("empty document", func(t *testing.T) {
		ops, err := Decode(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, ops)
	})
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing server",
			doc:  "operations:\n  - association: {input_type: Gene, output_type: Disease, predicate: related_to, api_name: apiX, input_id: NCBIGene}\n    response: {output_id: _id}\n",
			want: "missing query.server",
		},
		{
			name: "missing association field",
			doc:  "operations:\n  - association: {input_type: Gene, predicate: related_to, api_name: apiX, input_id: NCBIGene}\n",
			want: "missing output_type",
		},
		{
			name: "bad method",
			doc:  "operations:\n  - association: {input_type: Gene, output_type: Disease, predicate: related_to, api_name: apiX, input_id: NCBIGene}\n    query: {server: 'https://x', method: delete}\n    response: {output_id: _id}\n",
			want: "unsupported method",
		},
		{
			name: "batch without input path",
			doc:  "operations:\n  - association: {input_type: Gene, output_type: Disease, predicate: related_to, api_name: apiX, input_id: NCBIGene}\n    supports_batch: true\n    query: {server: 'https://x', method: post}\n    response: {hits: hits, output_id: _id}\n",
			want: "supports_batch requires response.input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, cfgErr.Error(), tt.want)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		_, err := Decode(strings.NewReader("operations:\n  - bogus: true\n"))
		require.Error(t, err)
	})
}

func TestLoadFile_MissingFileIsConfigurationError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "nope.yaml")
}

func TestLoadFile_SetsSourceOnValidationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("operations:\n  - association: {input_type: Gene}\n"), 0o600))

	_, err := LoadFile(path)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Source)
}
