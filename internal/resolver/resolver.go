// Package resolver builds the GraphQL schema from the edge map and resolves
// relationship fields by batching sibling parents into one cross-API call.
package resolver

import (
	"fmt"
	"sync"

	"bte-graphql/internal/correlation"
	"bte-graphql/internal/edgemap"
	"bte-graphql/internal/engine"
	"bte-graphql/internal/idresolver"
	"bte-graphql/internal/metakg"
	"bte-graphql/internal/planner"
	"bte-graphql/internal/setutil"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"
)

const (
	objectInterfaceName = "ObjectType"
	objectTypeField     = "__object_type"
)

// Options toggles optional schema and resolution features.
type Options struct {
	// Limits, when set, rejects queries nested deeper than Limits.MaxDepth.
	Limits *planner.PlanLimits
	// Correlation adds sortBy/maxResults arguments and the correlation field.
	Correlation bool
	// EnrichLabels looks up labels of output ids the provider left unnamed.
	EnrichLabels bool
}

// Resolver owns the generated schema and the static edge registry.
// The catalog and edge map are read-only after construction.
type Resolver struct {
	catalog  *metakg.Catalog
	edges    *edgemap.EdgeMap
	ids      *idresolver.Adapter
	executor engine.Executor
	opts     Options

	typeNames  *symbolTable
	apiSymbols *symbolTable
	registry   map[edgeKey]EdgeResolution

	typeCache       map[string]*graphql.Object
	enumCache       map[string]*graphql.Enum
	objectInterface *graphql.Interface
	sortByEnum      *graphql.Enum
	correlationType *graphql.Object
	mu              sync.RWMutex
}

// NewResolver creates a resolver over catalog and its edge map. ids resolves
// input and output identifiers, executor calls the provider APIs.
func NewResolver(catalog *metakg.Catalog, edges *edgemap.EdgeMap, ids *idresolver.Adapter, executor engine.Executor, opts Options) *Resolver {
	r := &Resolver{
		catalog:    catalog,
		edges:      edges,
		ids:        ids,
		executor:   executor,
		opts:       opts,
		typeNames:  newSymbolTable(edges.ObjectTypes()),
		apiSymbols: newSymbolTable(catalog.APIs()),
		typeCache:  make(map[string]*graphql.Object),
		enumCache:  make(map[string]*graphql.Enum),
	}
	r.registry = r.buildRegistry()
	return r
}

// APISymbol returns the enum symbol used for an API name.
func (r *Resolver) APISymbol(apiName string) (string, bool) {
	return r.apiSymbols.symbol(apiName)
}

// APIName translates an enum symbol back to the API name it stands for.
func (r *Resolver) APIName(symbol string) (string, bool) {
	return r.apiSymbols.value(symbol)
}

// BuildGraphQLSchema constructs the executable schema: one root list field per
// edge-map key and one object type per semantic type.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	queryFields := graphql.Fields{}

	for _, in := range r.edges.InputTypes() {
		r.addRootQuery(queryFields, in)
	}

	// If the catalog is empty, add a placeholder query to satisfy GraphQL requirements
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No operations found in catalog", nil
			},
			Description: "Placeholder field when the catalog has no operations",
		}
	}

	types := make([]graphql.Type, 0, len(r.edges.ObjectTypes()))
	for _, semanticType := range r.edges.ObjectTypes() {
		types = append(types, r.buildGraphQLType(semanticType))
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
		Types: types,
	})
}

func (r *Resolver) graphQLTypeName(semanticType string) string {
	if name, ok := r.typeNames.symbol(semanticType); ok {
		return name
	}
	return sanitizeName(semanticType)
}

func (r *Resolver) addRootQuery(fields graphql.Fields, semanticType string) {
	name := r.graphQLTypeName(semanticType)
	fields[name] = &graphql.Field{
		Type:        graphql.NewList(r.buildGraphQLType(semanticType)),
		Description: fmt.Sprintf("Look up %s objects by identifier. Returns one object per id, in order.", name),
		Args: graphql.FieldConfigArgument{
			"ids": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.String)),
			},
		},
		Resolve: r.makeRootResolver(semanticType),
	}
}

func (r *Resolver) buildGraphQLType(semanticType string) *graphql.Object {
	typeName := r.graphQLTypeName(semanticType)

	r.mu.RLock()
	cached, ok := r.typeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	// FieldsThunk defers relationship fields so types can refer to each other.
	objType := graphql.NewObject(graphql.ObjectConfig{
		Name:       typeName,
		Interfaces: []*graphql.Interface{r.objectTypeInterface()},
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.buildFieldsForType(semanticType)
		}),
	})

	r.mu.Lock()
	if cached, ok := r.typeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.typeCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

func commonFields() graphql.Fields {
	return graphql.Fields{
		"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"label":       &graphql.Field{Type: graphql.String},
		"publication": &graphql.Field{Type: graphql.NewList(graphql.String), Description: `Tagged references, "pubmed:<id>" or "pmc:<id>".`},
		"api":         &graphql.Field{Type: graphql.String},
		"source":      &graphql.Field{Type: graphql.String},
		"predicate":   &graphql.Field{Type: graphql.String},
	}
}

func (r *Resolver) objectTypeInterface() *graphql.Interface {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.objectInterface != nil {
		return r.objectInterface
	}
	r.objectInterface = graphql.NewInterface(graphql.InterfaceConfig{
		Name:        objectInterfaceName,
		Description: "Fields shared by every biomedical object",
		Fields:      commonFields(),
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			row, ok := p.Value.(map[string]interface{})
			if !ok {
				return nil
			}
			name, _ := row[objectTypeField].(string)
			r.mu.RLock()
			defer r.mu.RUnlock()
			return r.typeCache[name]
		},
	})
	return r.objectInterface
}

// buildFieldsForType builds the fields of one object type (called lazily by FieldsThunk)
func (r *Resolver) buildFieldsForType(semanticType string) graphql.Fields {
	fields := commonFields()

	if r.opts.Correlation {
		fields["correlation"] = &graphql.Field{Type: r.correlationObject()}
	}

	for _, out := range r.edges.OutputTypes(semanticType) {
		fieldName := r.graphQLTypeName(out)
		if _, exists := fields[fieldName]; exists {
			continue
		}
		fields[fieldName] = &graphql.Field{
			Type:    graphql.NewList(r.buildGraphQLType(out)),
			Args:    r.edgeArgsConfig(semanticType, out),
			Resolve: r.makeEdgeResolver(semanticType, out),
		}
	}
	return fields
}

func (r *Resolver) edgeArgsConfig(in, out string) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{}
	if enum := r.predicateEnum(in, out); enum != nil {
		args["predicates"] = &graphql.ArgumentConfig{
			Type:        graphql.NewList(enum),
			Description: "Only follow these predicates. Omit for all.",
		}
	}
	if enum := r.apiEnum(in, out); enum != nil {
		args["apis"] = &graphql.ArgumentConfig{
			Type:        graphql.NewList(enum),
			Description: "Only query these APIs. Omit for all.",
		}
	}
	if r.opts.Correlation {
		args["sortBy"] = &graphql.ArgumentConfig{Type: r.sortByType()}
		args["maxResults"] = &graphql.ArgumentConfig{Type: graphql.Int}
	}
	return args
}

func (r *Resolver) enumName(in, out, suffix string) string {
	return r.graphQLTypeName(in) + "To" + r.graphQLTypeName(out) + suffix
}

func (r *Resolver) cachedEnum(name string, build func() *graphql.Enum) *graphql.Enum {
	r.mu.Lock()
	defer r.mu.Unlock()

	if enum, ok := r.enumCache[name]; ok {
		return enum
	}
	enum := build()
	if enum != nil {
		r.enumCache[name] = enum
	}
	return enum
}

// predicateEnum values carry the normalized predicate itself.
func (r *Resolver) predicateEnum(in, out string) *graphql.Enum {
	edge, ok := r.edges.Edge(in, out)
	if !ok || len(edge.Predicates) == 0 {
		return nil
	}
	name := r.enumName(in, out, "Predicates")
	return r.cachedEnum(name, func() *graphql.Enum {
		symbols := newSymbolTable(edge.Predicates)
		values := graphql.EnumValueConfigMap{}
		for _, predicate := range edge.Predicates {
			symbol, _ := symbols.symbol(predicate)
			values[symbol] = &graphql.EnumValueConfig{Value: predicate}
		}
		return graphql.NewEnum(graphql.EnumConfig{Name: name, Values: values})
	})
}

// apiEnum values carry the symbol; APIName maps it back.
func (r *Resolver) apiEnum(in, out string) *graphql.Enum {
	edge, ok := r.edges.Edge(in, out)
	if !ok || len(edge.APIs) == 0 {
		return nil
	}
	name := r.enumName(in, out, "APIs")
	return r.cachedEnum(name, func() *graphql.Enum {
		values := graphql.EnumValueConfigMap{}
		for _, api := range edge.APIs {
			symbol, ok := r.apiSymbols.symbol(api)
			if !ok {
				continue
			}
			values[symbol] = &graphql.EnumValueConfig{Value: symbol, Description: api}
		}
		return graphql.NewEnum(graphql.EnumConfig{Name: name, Values: values})
	})
}

func (r *Resolver) sortByType() *graphql.Enum {
	return r.cachedEnum("CorrelationSortBy", func() *graphql.Enum {
		values := graphql.EnumValueConfigMap{}
		for _, key := range correlation.SortKeys() {
			values[string(key)] = &graphql.EnumValueConfig{Value: string(key)}
		}
		return graphql.NewEnum(graphql.EnumConfig{
			Name:        "CorrelationSortBy",
			Description: "Score to sort by, ascending. Objects without a score come last.",
			Values:      values,
		})
	})
}

func (r *Resolver) correlationObject() *graphql.Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.correlationType == nil {
		r.correlationType = graphql.NewObject(graphql.ObjectConfig{
			Name: "Correlation",
			Fields: graphql.Fields{
				"ngd_overall": &graphql.Field{Type: graphql.Float},
				"ngd_starred": &graphql.Field{Type: graphql.Float},
			},
		})
	}
	return r.correlationType
}

func (r *Resolver) makeRootResolver(semanticType string) graphql.FieldResolveFn {
	typeName := r.graphQLTypeName(semanticType)
	return func(p graphql.ResolveParams) (interface{}, error) {
		if r.opts.Limits != nil {
			if err := planner.ValidateDepth(firstFieldAST(p.Info.FieldASTs), p.Info.Fragments, *r.opts.Limits); err != nil {
				return nil, err
			}
		}

		ids := stringListArg(p.Args, "ids")
		ctx, span := startResolverSpan(p.Context, "graphql.root",
			attribute.String("bte.type", semanticType),
			attribute.Int("bte.id_count", len(ids)),
		)

		resolution := r.ids.Resolve(ctx, semanticType, setutil.Unique(ids))
		rows := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			row := map[string]interface{}{
				"id":            id,
				"publication":   []string{},
				objectTypeField: typeName,
			}
			if rec, ok := resolution.Record(id); ok && rec.Label != "" {
				row["label"] = rec.Label
			}
			rows[i] = row
		}
		seedBatchRows(p.Context, groupKeyFromResolve(p), rows)

		outcome := outcomeSuccess
		if len(resolution.Resolved) == 0 {
			outcome = outcomeEmpty
		}
		finishResolverSpan(span, nil, outcome)
		span.End()
		return rows, nil
	}
}

func stringListArg(args map[string]interface{}, key string) []string {
	return setutil.Strings(args[key])
}

func optionalIntArg(args map[string]interface{}, key string) (int, bool) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
