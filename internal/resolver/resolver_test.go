package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"bte-graphql/internal/edgemap"
	"bte-graphql/internal/engine"
	"bte-graphql/internal/idresolver"
	"bte-graphql/internal/metakg"
	"bte-graphql/internal/planner"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIDResolver struct {
	records map[string]idresolver.Record
}

func (f *fakeIDResolver) Resolve(_ context.Context, _ string, ids []string) (map[string]idresolver.Record, error) {
	out := make(map[string]idresolver.Record)
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func resolved(id, label string, equivalents ...string) idresolver.Record {
	if len(equivalents) == 0 {
		equivalents = []string{id}
	}
	return idresolver.Record{
		ID:                    id,
		Status:                idresolver.StatusResolved,
		Label:                 label,
		EquivalentIdentifiers: equivalents,
		NamespaceIDs:          idresolver.GroupByNamespace(equivalents),
	}
}

// fakeExecutor answers every dispatched input from a table keyed by
// "api|input" and records each Execute call.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   [][]planner.DispatchedOperation
	results map[string][]engine.ApiResult
}

func (f *fakeExecutor) Execute(_ context.Context, dispatched []planner.DispatchedOperation) []engine.ApiResult {
	f.mu.Lock()
	f.calls = append(f.calls, dispatched)
	f.mu.Unlock()

	var out []engine.ApiResult
	for i, d := range dispatched {
		assoc := d.Operation.Association
		for _, in := range d.Inputs {
			for _, r := range f.results[assoc.APIName+"|"+in] {
				r.DispatchIndex = i
				r.DispatchedInputID = in
				r.APIName = assoc.APIName
				r.Source = assoc.Source
				r.Predicate = edgemap.Normalize(assoc.Predicate)
				r.OutputType = edgemap.Normalize(assoc.OutputType)
				out = append(out, r)
			}
		}
	}
	return out
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func op(in, out, predicate, api, namespace string, batch bool) metakg.Operation {
	return metakg.Operation{
		Association: metakg.Association{
			InputType:        in,
			OutputType:       out,
			Predicate:        predicate,
			APIName:          api,
			InputIDNamespace: namespace,
			Source:           "infores:test",
		},
		SupportsBatch: batch,
	}
}

func buildTestResolver(t *testing.T, ops []metakg.Operation, records map[string]idresolver.Record, exec engine.Executor, opts Options) (*Resolver, graphql.Schema) {
	t.Helper()
	catalog, err := metakg.New(ops)
	require.NoError(t, err)
	edges, err := edgemap.Build(catalog.Operations())
	require.NoError(t, err)

	r := NewResolver(catalog, edges, idresolver.NewAdapter(&fakeIDResolver{records: records}, nil), exec, opts)
	schema, err := r.BuildGraphQLSchema()
	require.NoError(t, err)
	return r, schema
}

func runQuery(t *testing.T, ctx context.Context, schema graphql.Schema, query string) string {
	t.Helper()
	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: query,
		Context:       ctx,
	})
	require.Empty(t, result.Errors, "unexpected errors: %v", result.Errors)
	data, err := json.Marshal(result.Data)
	require.NoError(t, err)
	return string(data)
}

func batchingContext() context.Context {
	return NewBatchingContext(context.Background())
}

func TestSingleBatchedOperation(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {{OutputID: "MONDO:1", Name: "ebola", PubMed: "123"}},
	}}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true)},
		map[string]idresolver.Record{"NCBIGene:1": resolved("NCBIGene:1", "CDK2")},
		exec, Options{})

	got := runQuery(t, batchingContext(), schema, `{
		Gene(ids: ["NCBIGene:1"]) {
			id
			label
			Disease { id label publication api source predicate }
		}
	}`)

	assert.JSONEq(t, `{"Gene":[{"id":"NCBIGene:1","label":"CDK2","Disease":[
		{"id":"MONDO:1","label":"ebola","publication":["pubmed:123"],"api":"apiX","source":"infores:test","predicate":"related_to"}
	]}]}`, got)
	require.Equal(t, 1, exec.callCount())
	require.Len(t, exec.calls[0], 1)
	assert.Equal(t, []string{"NCBIGene:1"}, exec.calls[0][0].Inputs)
}

func TestFailedResolutionYieldsEmptyBucket(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|MONDO:1234": {{OutputID: "NCBIGene:7"}, {OutputID: "NCBIGene:8"}},
	}}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Disease", "Gene", "related_to", "apiX", "MONDO", true)},
		map[string]idresolver.Record{"MONDO:1234": resolved("MONDO:1234", "")},
		exec, Options{})

	got := runQuery(t, batchingContext(), schema, `{ Disease(ids: ["MONDO:1234", "FAKE:9999"]) { id Gene { id } } }`)

	assert.JSONEq(t, `{"Disease":[
		{"id":"MONDO:1234","Gene":[{"id":"NCBIGene:7"},{"id":"NCBIGene:8"}]},
		{"id":"FAKE:9999","Gene":[]}
	]}`, got)

	reversed := runQuery(t, batchingContext(), schema, `{ Disease(ids: ["FAKE:9999", "MONDO:1234"]) { id Gene { id } } }`)
	assert.JSONEq(t, `{"Disease":[
		{"id":"FAKE:9999","Gene":[]},
		{"id":"MONDO:1234","Gene":[{"id":"NCBIGene:7"},{"id":"NCBIGene:8"}]}
	]}`, reversed)
}

func TestSiblingParentsShareOneCall(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {{OutputID: "MONDO:1"}},
		"apiX|NCBIGene:3": {{OutputID: "MONDO:3"}},
	}}
	records := map[string]idresolver.Record{
		"NCBIGene:1": resolved("NCBIGene:1", ""),
		"NCBIGene:2": resolved("NCBIGene:2", ""),
		"NCBIGene:3": resolved("NCBIGene:3", ""),
	}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{
			op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true),
			op("Gene", "Disease", "affects", "apiY", "NCBIGene", false),
		},
		records, exec, Options{})

	got := runQuery(t, batchingContext(), schema,
		`{ Gene(ids: ["NCBIGene:1", "NCBIGene:2", "NCBIGene:3", "NCBIGene:1"]) { Disease { id } } }`)

	assert.JSONEq(t, `{"Gene":[
		{"Disease":[{"id":"MONDO:1"}]},
		{"Disease":[]},
		{"Disease":[{"id":"MONDO:3"}]},
		{"Disease":[{"id":"MONDO:1"}]}
	]}`, got)

	require.Equal(t, 1, exec.callCount())
	dispatched := exec.calls[0]
	require.Len(t, dispatched, 4, "one batched call plus one call per id for the non-batch api")
	assert.Equal(t, []string{"NCBIGene:1", "NCBIGene:2", "NCBIGene:3"}, dispatched[0].Inputs)
	for _, d := range dispatched[1:] {
		assert.Equal(t, "apiY", d.Operation.Association.APIName)
		assert.Len(t, d.Inputs, 1)
	}
}

func TestWithoutBatchStateResolvesPerParent(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {{OutputID: "MONDO:1"}},
		"apiX|NCBIGene:2": {{OutputID: "MONDO:2"}},
	}}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true)},
		map[string]idresolver.Record{
			"NCBIGene:1": resolved("NCBIGene:1", ""),
			"NCBIGene:2": resolved("NCBIGene:2", ""),
		},
		exec, Options{})

	got := runQuery(t, context.Background(), schema, `{ Gene(ids: ["NCBIGene:1", "NCBIGene:2"]) { Disease { id } } }`)

	assert.JSONEq(t, `{"Gene":[{"Disease":[{"id":"MONDO:1"}]},{"Disease":[{"id":"MONDO:2"}]}]}`, got)
	assert.Equal(t, 2, exec.callCount())
}

func TestNestedLevelsBatchPerLevel(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {{OutputID: "MONDO:1"}, {OutputID: "MONDO:2"}},
		"apiX|NCBIGene:2": {{OutputID: "MONDO:2"}},
		"apiZ|MONDO:1":    {{OutputID: "NCBIGene:5"}},
		"apiZ|MONDO:2":    {{OutputID: "NCBIGene:6"}},
	}}
	records := map[string]idresolver.Record{
		"NCBIGene:1": resolved("NCBIGene:1", ""),
		"NCBIGene:2": resolved("NCBIGene:2", ""),
		"MONDO:1":    resolved("MONDO:1", ""),
		"MONDO:2":    resolved("MONDO:2", ""),
	}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{
			op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true),
			op("Disease", "Gene", "related_to", "apiZ", "MONDO", true),
		},
		records, exec, Options{})

	got := runQuery(t, batchingContext(), schema,
		`{ Gene(ids: ["NCBIGene:1", "NCBIGene:2"]) { Disease { id Gene { id } } } }`)

	assert.JSONEq(t, `{"Gene":[
		{"Disease":[{"id":"MONDO:1","Gene":[{"id":"NCBIGene:5"}]},{"id":"MONDO:2","Gene":[{"id":"NCBIGene:6"}]}]},
		{"Disease":[{"id":"MONDO:2","Gene":[{"id":"NCBIGene:6"}]}]}
	]}`, got)

	require.Equal(t, 2, exec.callCount())
	assert.Equal(t, []string{"MONDO:1", "MONDO:2"}, exec.calls[1][0].Inputs)
}

func TestPredicateEnumAndFilters(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {{OutputID: "MONDO:1"}},
		"apiY|NCBIGene:1": {{OutputID: "MONDO:2"}},
	}}
	r, schema := buildTestResolver(t,
		[]metakg.Operation{
			op("biolink:Gene", "biolink:Disease", "biolink:related_to", "apiX", "NCBIGene", true),
			op("Gene", "Disease", "affects", "apiY", "NCBIGene", true),
		},
		map[string]idresolver.Record{"NCBIGene:1": resolved("NCBIGene:1", "")},
		exec, Options{})

	enum, ok := schema.Type("GeneToDiseasePredicates").(*graphql.Enum)
	require.True(t, ok)
	var names []string
	for _, v := range enum.Values() {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"affects", "related_to"}, names)

	apis, ok := schema.Type("GeneToDiseaseAPIs").(*graphql.Enum)
	require.True(t, ok)
	assert.Len(t, apis.Values(), 2)

	tests := []struct {
		name string
		args string
		want string
	}{
		{name: "no filter", args: "", want: `[{"id":"MONDO:1"},{"id":"MONDO:2"}]`},
		{name: "predicate", args: "(predicates: [affects])", want: `[{"id":"MONDO:2"}]`},
		{name: "both predicates", args: "(predicates: [affects, related_to])", want: `[{"id":"MONDO:1"},{"id":"MONDO:2"}]`},
		{name: "api", args: "(apis: [apiX])", want: `[{"id":"MONDO:1"}]`},
		{name: "predicate and api", args: "(predicates: [affects], apis: [apiX])", want: `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runQuery(t, batchingContext(), schema, fmt.Sprintf(`{ Gene(ids: ["NCBIGene:1"]) { Disease%s { id } } }`, tt.args))
			assert.JSONEq(t, `{"Gene":[{"Disease":`+tt.want+`}]}`, got)
		})
	}

	resolve, ok := r.Resolution("Gene", "Disease")
	require.True(t, ok)
	buckets := resolve(context.Background(), []string{"NCBIGene:1", "NCBIGene:404"}, EdgeArgs{Predicates: []string{"affects"}})
	require.Len(t, buckets, 2)
	assert.Len(t, buckets[0], 1)
	assert.Empty(t, buckets[1])
}

func TestAPIEnumRoundTrip(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"MyDisease.info API|NCBIGene:1": {{OutputID: "MONDO:1"}},
		"SEMMED Gene API|NCBIGene:1":    {{OutputID: "MONDO:2"}},
	}}
	r, schema := buildTestResolver(t,
		[]metakg.Operation{
			op("Gene", "Disease", "related_to", "MyDisease.info API", "NCBIGene", true),
			op("Gene", "Disease", "related_to", "SEMMED Gene API", "NCBIGene", true),
		},
		map[string]idresolver.Record{"NCBIGene:1": resolved("NCBIGene:1", "")},
		exec, Options{})

	for _, api := range []string{"MyDisease.info API", "SEMMED Gene API"} {
		symbol, ok := r.APISymbol(api)
		require.True(t, ok)
		back, ok := r.APIName(symbol)
		require.True(t, ok)
		assert.Equal(t, api, back)
	}
	symbol, _ := r.APISymbol("MyDisease.info API")
	assert.Equal(t, "MyDisease_info_API", symbol)

	got := runQuery(t, batchingContext(), schema, `{ Gene(ids: ["NCBIGene:1"]) { Disease(apis: [SEMMED_Gene_API]) { id api } } }`)
	assert.JSONEq(t, `{"Gene":[{"Disease":[{"id":"MONDO:2","api":"SEMMED Gene API"}]}]}`, got)
}

func TestCorrelationSortAndLimit(t *testing.T) {
	scores := []float64{0.9, 0.3, 0.7, 0.1, 0.5, 0.8, 0.2, 0.6, 0.4, 0.95}
	var results []engine.ApiResult
	for i, s := range scores {
		s := s
		results = append(results, engine.ApiResult{OutputID: fmt.Sprintf("MONDO:%d", i), NGDOverall: &s})
	}
	results = append(results, engine.ApiResult{OutputID: "MONDO:none"})
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{"apiX|NCBIGene:1": results}}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true)},
		map[string]idresolver.Record{"NCBIGene:1": resolved("NCBIGene:1", "")},
		exec, Options{Correlation: true})

	got := runQuery(t, batchingContext(), schema,
		`{ Gene(ids: ["NCBIGene:1"]) { Disease(sortBy: ngd_overall, maxResults: 3) { id correlation { ngd_overall } } } }`)

	assert.JSONEq(t, `{"Gene":[{"Disease":[
		{"id":"MONDO:3","correlation":{"ngd_overall":0.1}},
		{"id":"MONDO:6","correlation":{"ngd_overall":0.2}},
		{"id":"MONDO:1","correlation":{"ngd_overall":0.3}}
	]}]}`, got)

	all := runQuery(t, batchingContext(), schema,
		`{ Gene(ids: ["NCBIGene:1"]) { Disease(sortBy: ngd_overall) { id } } }`)
	var decoded struct {
		Gene []struct {
			Disease []struct{ ID string } `json:"Disease"`
		} `json:"Gene"`
	}
	require.NoError(t, json.Unmarshal([]byte(all), &decoded))
	diseases := decoded.Gene[0].Disease
	require.Len(t, diseases, 11)
	assert.Equal(t, "MONDO:none", diseases[10].ID)
}

func TestCorrelationArgsAbsentWhenDisabled(t *testing.T) {
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true)},
		nil, &fakeExecutor{}, Options{})

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ Gene(ids: ["NCBIGene:1"]) { Disease(maxResults: 3) { id } } }`,
		Context:       batchingContext(),
	})
	require.NotEmpty(t, result.Errors)
	assert.Nil(t, schema.Type("Correlation"))
}

func TestLabelEnrichment(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {
			{OutputID: "MONDO:1", Name: "raw name"},
			{OutputID: "MONDO:9", Name: "raw 9"},
			{OutputID: "MONDO:10"},
		},
	}}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true)},
		map[string]idresolver.Record{
			"NCBIGene:1": resolved("NCBIGene:1", ""),
			"MONDO:1":    resolved("MONDO:1", "normalized"),
		},
		exec, Options{EnrichLabels: true})

	got := runQuery(t, batchingContext(), schema, `{ Gene(ids: ["NCBIGene:1"]) { Disease { id label } } }`)

	assert.JSONEq(t, `{"Gene":[{"Disease":[
		{"id":"MONDO:1","label":"normalized"},
		{"id":"MONDO:9","label":"raw 9"},
		{"id":"MONDO:10","label":""}
	]}]}`, got)
}

func TestDepthLimit(t *testing.T) {
	exec := &fakeExecutor{}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{
			op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true),
			op("Disease", "Gene", "related_to", "apiZ", "MONDO", true),
		},
		nil, exec, Options{Limits: &planner.PlanLimits{MaxDepth: 2}})

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ Gene(ids: ["NCBIGene:1"]) { Disease { Gene { id } } } }`,
		Context:       batchingContext(),
	})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "maximum depth")
	assert.Equal(t, 0, exec.callCount())
}

func TestInterfaceAndTypes(t *testing.T) {
	exec := &fakeExecutor{results: map[string][]engine.ApiResult{
		"apiX|NCBIGene:1": {{OutputID: "MONDO:1"}},
	}}
	_, schema := buildTestResolver(t,
		[]metakg.Operation{op("Gene", "Disease", "related_to", "apiX", "NCBIGene", true)},
		map[string]idresolver.Record{"NCBIGene:1": resolved("NCBIGene:1", "")},
		exec, Options{})

	_, ok := schema.Type("ObjectType").(*graphql.Interface)
	require.True(t, ok)
	disease, ok := schema.Type("Disease").(*graphql.Object)
	require.True(t, ok)
	assert.Len(t, disease.Interfaces(), 1)
	_, hasRoot := schema.QueryType().Fields()["Disease"]
	assert.False(t, hasRoot, "output-only types have no root field")

	got := runQuery(t, batchingContext(), schema,
		`{ Gene(ids: ["NCBIGene:1"]) { Disease { ... on ObjectType { id __typename } } } }`)
	assert.JSONEq(t, `{"Gene":[{"Disease":[{"id":"MONDO:1","__typename":"Disease"}]}]}`, got)
}

func TestEmptyCatalogPlaceholder(t *testing.T) {
	_, schema := buildTestResolver(t, nil, nil, &fakeExecutor{}, Options{})

	got := runQuery(t, context.Background(), schema, `{ _schema }`)
	assert.JSONEq(t, `{"_schema":"No operations found in catalog"}`, got)
}
