package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"bte-graphql/internal/correlation"
	"bte-graphql/internal/engine"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/observability"
	"bte-graphql/internal/planner"
	"bte-graphql/internal/reconcile"
	"bte-graphql/internal/setutil"

	"github.com/graphql-go/graphql"
)

type edgeKey struct {
	in  string
	out string
}

func (k edgeKey) String() string {
	return k.in + "->" + k.out
}

// EdgeArgs are the per-call constraints of a relationship field.
type EdgeArgs struct {
	Predicates  []string
	APIs        []string
	Correlation correlation.Options
}

// EdgeResolution resolves one relationship for many input ids at once and
// returns one bucket per id, in the order given.
type EdgeResolution func(ctx context.Context, ids []string, args EdgeArgs) [][]reconcile.ObjectRecord

// BatchLoadFunc loads the values for many keys in one call. The result holds
// exactly one entry per key, in key order.
type BatchLoadFunc func(ctx context.Context, keys []string) ([][]reconcile.ObjectRecord, error)

// Loader binds field arguments, leaving the keys open.
func (e EdgeResolution) Loader(args EdgeArgs) BatchLoadFunc {
	return func(ctx context.Context, keys []string) ([][]reconcile.ObjectRecord, error) {
		return e(ctx, keys, args), nil
	}
}

// buildRegistry creates the resolution closure for every edge-map pair.
func (r *Resolver) buildRegistry() map[edgeKey]EdgeResolution {
	registry := make(map[edgeKey]EdgeResolution, r.edges.Len())
	for _, in := range r.edges.InputTypes() {
		for _, out := range r.edges.OutputTypes(in) {
			registry[edgeKey{in: in, out: out}] = func(ctx context.Context, ids []string, args EdgeArgs) [][]reconcile.ObjectRecord {
				return r.resolveEdge(ctx, in, out, ids, args)
			}
		}
	}
	return registry
}

// Resolution returns the registered closure for a pair.
func (r *Resolver) Resolution(in, out string) (EdgeResolution, bool) {
	resolve, ok := r.registry[edgeKey{in: in, out: out}]
	return resolve, ok
}

// resolveEdge runs filter, id resolution, dispatch, execution and
// reconciliation for all ids together.
func (r *Resolver) resolveEdge(ctx context.Context, in, out string, ids []string, args EdgeArgs) [][]reconcile.ObjectRecord {
	ctx, span := startResolverSpan(ctx, "graphql.edge", edgeAttributes(in, out, len(ids))...)
	defer span.End()
	logger := logging.FromContext(ctx)

	unique := setutil.Unique(ids)
	ops := planner.SelectOperations(r.catalog, planner.Criteria{
		InputType:  in,
		OutputType: out,
		Predicates: args.Predicates,
		APIs:       args.APIs,
	})
	if len(ops) == 0 {
		logger.Debug("no operations match edge",
			slog.String("edge", edgeKey{in, out}.String()),
			slog.Any("predicates", args.Predicates),
			slog.Any("apis", args.APIs),
		)
		finishResolverSpan(span, nil, outcomeEmpty)
		return reconcile.Assemble(ids, nil)
	}

	resolution := r.ids.Resolve(ctx, in, unique)
	dispatched := planner.Dispatch(ctx, ops, unique, resolution)
	if len(dispatched) == 0 {
		finishResolverSpan(span, nil, outcomeEmpty)
		return reconcile.Assemble(ids, nil)
	}

	results := r.executor.Execute(ctx, dispatched)
	if r.opts.EnrichLabels {
		r.enrichLabels(ctx, out, results)
	}

	buckets := reconcile.Bucket(ctx, results, dispatched)
	buckets = correlation.Apply(buckets, args.Correlation)

	logger.Debug("edge resolved",
		slog.String("edge", edgeKey{in, out}.String()),
		slog.Int("ids", len(unique)),
		slog.Int("operations", len(ops)),
		slog.Int("dispatched", len(dispatched)),
		slog.Int("results", len(results)),
	)
	finishResolverSpan(span, nil, "")
	return reconcile.Assemble(ids, buckets)
}

// enrichLabels fills missing labels from the identifier resolver.
func (r *Resolver) enrichLabels(ctx context.Context, semanticType string, results []engine.ApiResult) {
	seen := make(map[string]struct{})
	var missing []string
	for _, res := range results {
		if res.Label != "" || res.OutputID == "" {
			continue
		}
		if _, ok := seen[res.OutputID]; ok {
			continue
		}
		seen[res.OutputID] = struct{}{}
		missing = append(missing, res.OutputID)
	}
	if len(missing) == 0 {
		return
	}

	resolution := r.ids.ResolveLabels(ctx, semanticType, missing)
	for i := range results {
		if results[i].Label != "" {
			continue
		}
		if rec, ok := resolution.Record(results[i].OutputID); ok {
			results[i].Label = rec.Label
		}
	}
}

func (r *Resolver) edgeArgs(args map[string]interface{}) (EdgeArgs, error) {
	out := EdgeArgs{Predicates: stringListArg(args, "predicates")}

	for _, symbol := range stringListArg(args, "apis") {
		name, ok := r.APIName(symbol)
		if !ok {
			return out, fmt.Errorf("unknown api %q", symbol)
		}
		out.APIs = append(out.APIs, name)
	}

	if raw, ok := args["sortBy"]; ok && raw != nil {
		key, err := correlation.ParseSortKey(fmt.Sprint(raw))
		if err != nil {
			return out, err
		}
		out.Correlation.SortBy = key
	}
	if n, ok := optionalIntArg(args, "maxResults"); ok {
		if n < 1 {
			return out, fmt.Errorf("maxResults must be at least 1")
		}
		out.Correlation.MaxResults = n
	}
	return out, nil
}

func (r *Resolver) makeEdgeResolver(in, out string) graphql.FieldResolveFn {
	key := edgeKey{in: in, out: out}
	typeName := r.graphQLTypeName(out)
	return func(p graphql.ResolveParams) (interface{}, error) {
		source, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid source type")
		}
		id, _ := source["id"].(string)
		if id == "" {
			return []map[string]interface{}{}, nil
		}

		args, err := r.edgeArgs(p.Args)
		if err != nil {
			return nil, err
		}
		resolve, ok := r.registry[key]
		if !ok {
			return nil, fmt.Errorf("no resolver registered for %s", key)
		}
		load := resolve.Loader(args)

		if rows, ok := r.tryBatchEdge(p, key, typeName, id, load); ok {
			return rows, nil
		}

		buckets, err := load(p.Context, []string{id})
		if err != nil || len(buckets) != 1 {
			logging.FromContext(p.Context).Error("edge load failed",
				slog.String("edge", key.String()),
				slog.String("id", id),
				slog.Any("error", err),
			)
			return []map[string]interface{}{}, nil
		}
		rows := recordRows(typeName, buckets[0])
		seedBatchRows(p.Context, groupKeyFromResolve(p), rows)
		return rows, nil
	}
}

// tryBatchEdge answers the field for one parent from a load covering every
// sibling parent. The first sibling triggers the load; the rest hit the cache.
func (r *Resolver) tryBatchEdge(p graphql.ResolveParams, key edgeKey, typeName, id string, load BatchLoadFunc) ([]map[string]interface{}, bool) {
	metrics := observability.GraphQLMetricsFromContext(p.Context)
	edge := key.String()

	state, ok := getBatchState(p.Context)
	if !ok {
		if metrics != nil {
			metrics.RecordBatchSkipped(p.Context, edge, "no_batch_state")
		}
		return nil, false
	}

	parentKey, ok := parentKeyFromSource(p.Source)
	if !ok {
		if metrics != nil {
			metrics.RecordBatchSkipped(p.Context, edge, "missing_parent_key")
		}
		return nil, false
	}

	parentRows := state.getParentRows(parentKey)
	if len(parentRows) == 0 {
		if metrics != nil {
			metrics.RecordBatchSkipped(p.Context, edge, "missing_parent_rows")
		}
		return nil, false
	}

	relKey := groupKeyFromResolve(p)
	if cached := state.getChildRows(relKey); cached != nil {
		state.IncrementCacheHit()
		if metrics != nil {
			metrics.RecordBatchCacheHit(p.Context, edge)
		}
		return rowsFor(cached, id), true
	}

	value, err, _ := state.flight.Do(relKey, func() (interface{}, error) {
		if cached := state.getChildRows(relKey); cached != nil {
			return cached, nil
		}
		state.IncrementCacheMiss()
		if metrics != nil {
			metrics.RecordBatchCacheMiss(p.Context, edge)
		}

		keys := uniqueParentIDs(parentRows)
		buckets, err := load(p.Context, keys)
		if err != nil {
			return nil, err
		}
		if len(buckets) != len(keys) {
			logging.FromContext(p.Context).Error("batch load returned wrong bucket count",
				slog.String("edge", edge),
				slog.Int("keys", len(keys)),
				slog.Int("buckets", len(buckets)),
			)
		}

		grouped := make(map[string][]map[string]interface{}, len(keys))
		var all []map[string]interface{}
		for i, k := range keys {
			var records []reconcile.ObjectRecord
			if i < len(buckets) {
				records = buckets[i]
			}
			rows := recordRows(typeName, records)
			grouped[k] = rows
			all = append(all, rows...)
		}
		seedBatchRows(p.Context, relKey, all)
		state.setChildRows(relKey, grouped)

		if metrics != nil {
			metrics.RecordBatchParentCount(p.Context, int64(len(keys)), edge)
			metrics.RecordBatchResultCount(p.Context, int64(len(all)), edge)
			metrics.RecordBatchCallsSaved(p.Context, listBatchCallsSaved(len(keys)), edge)
		}
		return grouped, nil
	})
	if err != nil {
		logging.FromContext(p.Context).Error("batched edge load failed",
			slog.String("edge", edge),
			slog.String("error", err.Error()),
		)
		return []map[string]interface{}{}, true
	}

	grouped, _ := value.(map[string][]map[string]interface{})
	return rowsFor(grouped, id), true
}

func rowsFor(grouped map[string][]map[string]interface{}, id string) []map[string]interface{} {
	if rows, ok := grouped[id]; ok && rows != nil {
		return rows
	}
	return []map[string]interface{}{}
}

func recordRows(typeName string, records []reconcile.ObjectRecord) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		row := map[string]interface{}{
			"id":            rec.ID,
			"label":         rec.Label,
			"publication":   rec.Publication,
			"api":           rec.API,
			"source":        rec.Source,
			"predicate":     rec.Predicate,
			objectTypeField: typeName,
		}
		if rec.Correlation != nil {
			row["correlation"] = map[string]interface{}{
				"ngd_overall": floatValue(rec.Correlation.NGDOverall),
				"ngd_starred": floatValue(rec.Correlation.NGDStarred),
			}
		}
		rows[i] = row
	}
	return rows
}

func floatValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
