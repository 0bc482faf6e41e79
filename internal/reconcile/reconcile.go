// Package reconcile folds the flat result list of the execution engine back
// into one bucket per requested id.
package reconcile

import (
	"context"
	"log/slog"

	"bte-graphql/internal/engine"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/planner"
)

const (
	pubmedTag = "pubmed"
	pmcTag    = "pmc"
)

// Correlation carries the optional relatedness scores of a record.
type Correlation struct {
	NGDOverall *float64
	NGDStarred *float64
}

// ObjectRecord is the value of one object in a relationship field.
type ObjectRecord struct {
	ID          string
	Label       string
	Publication []string
	API         string
	Source      string
	Predicate   string
	Correlation *Correlation
}

// Buckets maps an origin id to the records found for it.
type Buckets map[string][]ObjectRecord

// Bucket converts results into records grouped by the origin id that asked for
// them. Results whose dispatched id has no backmap entry are logged and dropped.
func Bucket(ctx context.Context, results []engine.ApiResult, dispatched []planner.DispatchedOperation) Buckets {
	logger := logging.FromContext(ctx)
	buckets := make(Buckets)

	for _, r := range results {
		if r.DispatchIndex < 0 || r.DispatchIndex >= len(dispatched) {
			logger.Error("result references unknown dispatched operation",
				slog.Int("dispatch_index", r.DispatchIndex),
				slog.String("api", r.APIName),
			)
			continue
		}
		origin, ok := dispatched[r.DispatchIndex].Origin(r.DispatchedInputID)
		if !ok {
			logger.Error("result has no origin id in backmap",
				slog.String("dispatched_id", r.DispatchedInputID),
				slog.String("output_id", r.OutputID),
				slog.String("api", r.APIName),
			)
			continue
		}
		buckets[origin] = append(buckets[origin], toRecord(logger, r))
	}
	return buckets
}

func toRecord(logger *logging.Logger, r engine.ApiResult) ObjectRecord {
	rec := ObjectRecord{
		ID:          r.OutputID,
		Label:       displayLabel(r),
		Publication: publications(logger, r),
		API:         r.APIName,
		Source:      r.Source,
		Predicate:   r.Predicate,
	}
	if r.NGDOverall != nil || r.NGDStarred != nil {
		rec.Correlation = &Correlation{NGDOverall: r.NGDOverall, NGDStarred: r.NGDStarred}
	}
	return rec
}

func displayLabel(r engine.ApiResult) string {
	switch {
	case r.Label != "":
		return r.Label
	case r.Name != "":
		return r.Name
	default:
		return ""
	}
}

func publications(logger *logging.Logger, r engine.ApiResult) []string {
	out := []string{}
	for _, field := range []struct {
		tag   string
		value any
	}{
		{pmcTag, r.PMC},
		{pubmedTag, r.PubMed},
	} {
		shape := ShapeOf(field.value)
		if shape.Kind == ShapeInvalid {
			logger.Warn("unexpected publication shape",
				slog.String("kind", field.tag),
				slog.String("api", r.APIName),
				slog.String("output_id", r.OutputID),
			)
			continue
		}
		out = append(out, shape.Tag(field.tag)...)
	}
	return out
}

// Assemble returns one slot per origin id, in order. Ids without a bucket get
// an empty, non-nil slice.
func Assemble(originIDs []string, buckets Buckets) [][]ObjectRecord {
	out := make([][]ObjectRecord, len(originIDs))
	for i, id := range originIDs {
		if records, ok := buckets[id]; ok && records != nil {
			out[i] = records
			continue
		}
		out[i] = []ObjectRecord{}
	}
	return out
}
