package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"golang.org/x/sync/singleflight"
)

// batchParentKeyField stamps every row with the group it was produced in, so a
// child field can find its sibling parents.
const batchParentKeyField = "__batch_parent_key"

type batchState struct {
	mu         sync.Mutex
	parentRows map[string][]map[string]interface{}
	childRows  map[string]map[string][]map[string]interface{}
	flight     singleflight.Group

	cacheHits   int32
	cacheMisses int32
}

type batchStateKey struct{}

// NewBatchingContext injects a request-scoped batch state for resolvers.
func NewBatchingContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, batchStateKey{}, &batchState{
		parentRows: make(map[string][]map[string]interface{}),
		childRows:  make(map[string]map[string][]map[string]interface{}),
	})
}

func getBatchState(ctx context.Context) (*batchState, bool) {
	if ctx == nil {
		return nil, false
	}

	state, ok := ctx.Value(batchStateKey{}).(*batchState)
	return state, ok
}

// GetBatchState retrieves the batch state from context (exported for middleware access).
func GetBatchState(ctx context.Context) (*batchState, bool) {
	return getBatchState(ctx)
}

// addParentRows appends rows to a group. Several resolvers may feed one group
// (every parent of a batched edge contributes its bucket).
func (s *batchState) addParentRows(parentKey string, rows []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.parentRows[parentKey] = append(s.parentRows[parentKey], rows...)
}

func (s *batchState) getParentRows(parentKey string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.parentRows[parentKey]
}

func (s *batchState) getChildRows(relKey string) map[string][]map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.childRows[relKey]
}

func (s *batchState) setChildRows(relKey string, rows map[string][]map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.childRows[relKey] = rows
}

// IncrementCacheHit increments the cache hit counter.
func (s *batchState) IncrementCacheHit() {
	atomic.AddInt32(&s.cacheHits, 1)
}

// IncrementCacheMiss increments the cache miss counter.
func (s *batchState) IncrementCacheMiss() {
	atomic.AddInt32(&s.cacheMisses, 1)
}

// GetCacheHits returns the current cache hit count.
func (s *batchState) GetCacheHits() int32 {
	return atomic.LoadInt32(&s.cacheHits)
}

// GetCacheMisses returns the current cache miss count.
func (s *batchState) GetCacheMisses() int32 {
	return atomic.LoadInt32(&s.cacheMisses)
}

// seedBatchRows stamps rows with the group key of the field that produced them
// and registers them as parents for the next level.
func seedBatchRows(ctx context.Context, groupKey string, rows []map[string]interface{}) {
	if len(rows) == 0 {
		return
	}
	state, ok := getBatchState(ctx)
	if !ok {
		return
	}
	for _, row := range rows {
		row[batchParentKeyField] = groupKey
	}
	state.addParentRows(groupKey, rows)
}

// groupKeyFromResolve identifies a field invocation with list indexes removed
// from its path: Gene.0.Disease and Gene.3.Disease share a group.
func groupKeyFromResolve(p graphql.ResolveParams) string {
	return fmt.Sprintf("%s|%s|%s", groupPathString(p.Info.Path), fieldNameWithAlias(p.Info.FieldASTs), stableArgsKey(p.Args))
}

func parentKeyFromSource(source interface{}) (string, bool) {
	row, ok := source.(map[string]interface{})
	if !ok {
		return "", false
	}
	key, ok := row[batchParentKeyField].(string)
	return key, ok
}

// uniqueParentIDs returns the distinct ids of rows, in first-seen order.
func uniqueParentIDs(rows []map[string]interface{}) []string {
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func listBatchCallsSaved(parentCount int) int64 {
	if parentCount <= 1 {
		return 0
	}
	return int64(parentCount - 1)
}

func firstFieldAST(fields []*ast.Field) *ast.Field {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

func fieldNameWithAlias(fields []*ast.Field) string {
	if len(fields) == 0 || fields[0] == nil {
		return ""
	}
	if fields[0].Alias != nil {
		return fields[0].Alias.Value
	}
	return fields[0].Name.Value
}

func stableArgsKey(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}

	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s=%v", key, args[key])
	}
	return strings.Join(parts, ",")
}

func groupPathString(path *graphql.ResponsePath) string {
	if path == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for current := path; current != nil; current = current.Prev {
		if _, isIndex := current.Key.(int); isIndex {
			continue
		}
		parts = append(parts, fmt.Sprint(current.Key))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
