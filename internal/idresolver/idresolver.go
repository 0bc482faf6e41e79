// Package idresolver maps requested identifiers to their resolution records:
// namespace-specific ids, equivalent identifiers and a preferred label.
package idresolver

import (
	"context"
	"log/slog"
	"strings"

	"bte-graphql/internal/logging"
	"bte-graphql/internal/observability"
)

// Status of a resolution record.
type Status string

const (
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Record is the resolution of one requested id.
type Record struct {
	ID                    string
	PrimaryID             string
	Status                Status
	NamespaceIDs          map[string][]string
	EquivalentIdentifiers []string
	Label                 string
}

// Resolved reports whether the record can be used for dispatch.
func (r Record) Resolved() bool {
	return r.Status != StatusFailed
}

// Resolver is the external identifier resolution service. On error the
// returned map may still hold the records resolved before the failure.
type Resolver interface {
	Resolve(ctx context.Context, semanticType string, ids []string) (map[string]Record, error)
}

// Prefix returns the namespace of a curie ("NCBIGene:1017" -> "NCBIGene").
func Prefix(id string) string {
	if idx := strings.Index(id, ":"); idx > 0 {
		return id[:idx]
	}
	return ""
}

// GroupByNamespace groups curies by their prefix, preserving order.
func GroupByNamespace(ids []string) map[string][]string {
	grouped := make(map[string][]string)
	for _, id := range ids {
		prefix := Prefix(id)
		if prefix == "" {
			continue
		}
		grouped[prefix] = append(grouped[prefix], id)
	}
	return grouped
}

// Resolution is the partitioned result of resolving one id list.
type Resolution struct {
	Records  map[string]Record
	Resolved []string
	Failed   []string
}

// Record returns the record for id and whether it resolved.
func (r Resolution) Record(id string) (Record, bool) {
	rec, ok := r.Records[id]
	if !ok || !rec.Resolved() {
		return Record{}, false
	}
	return rec, true
}

// Adapter wraps a Resolver and never fails: ids the resolver cannot handle are
// reported as failed and logged.
type Adapter struct {
	resolver Resolver
	metrics  *observability.UpstreamMetrics
}

// NewAdapter creates an adapter. metrics may be nil.
func NewAdapter(resolver Resolver, metrics *observability.UpstreamMetrics) *Adapter {
	return &Adapter{resolver: resolver, metrics: metrics}
}

// Resolve partitions ids into resolved and failed, preserving request order.
func (a *Adapter) Resolve(ctx context.Context, semanticType string, ids []string) Resolution {
	return a.resolve(ctx, observability.ResolutionInput, semanticType, ids)
}

// ResolveLabels resolves output ids only to learn their labels. An id the
// resolver does not know is expected here, so misses are logged at debug.
func (a *Adapter) ResolveLabels(ctx context.Context, semanticType string, ids []string) Resolution {
	return a.resolve(ctx, observability.ResolutionLabel, semanticType, ids)
}

func (a *Adapter) resolve(ctx context.Context, purpose, semanticType string, ids []string) Resolution {
	out := Resolution{Records: make(map[string]Record, len(ids))}
	if len(ids) == 0 {
		return out
	}

	logger := logging.FromContext(ctx)
	records, err := a.resolver.Resolve(ctx, semanticType, ids)
	if err != nil {
		logger.Warn("identifier resolution failed for batch",
			slog.String("type", semanticType),
			slog.Int("ids", len(ids)),
			slog.Int("partial", len(records)),
			slog.String("error", err.Error()),
		)
	}

	for _, id := range ids {
		if _, dup := out.Records[id]; dup {
			continue
		}
		rec, ok := records[id]
		if !ok || !rec.Resolved() {
			out.Records[id] = Record{ID: id, Status: StatusFailed}
			out.Failed = append(out.Failed, id)
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}
		out.Records[id] = rec
		out.Resolved = append(out.Resolved, id)
	}

	if len(out.Failed) > 0 {
		level := slog.LevelInfo
		if purpose == observability.ResolutionLabel {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "identifiers could not be resolved",
			slog.String("purpose", purpose),
			slog.String("type", semanticType),
			slog.Any("ids", out.Failed),
		)
	}
	a.metrics.RecordResolution(ctx, purpose, semanticType, len(out.Resolved), len(out.Failed))
	return out
}
