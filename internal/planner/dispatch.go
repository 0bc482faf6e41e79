package planner

import (
	"context"
	"log/slog"
	"strings"

	"bte-graphql/internal/idresolver"
	"bte-graphql/internal/logging"
	"bte-graphql/internal/metakg"
	"bte-graphql/internal/setutil"
)

// DispatchedOperation is one call to make against a provider: the operation,
// the ids to send and the backmap from each sendable id to the requesting id.
type DispatchedOperation struct {
	Operation        metakg.Operation
	Inputs           []string
	OriginalInputMap map[string]string
}

// Origin returns the requesting id for a dispatched id.
func (d DispatchedOperation) Origin(dispatchedID string) (string, bool) {
	origin, ok := d.OriginalInputMap[dispatchedID]
	return origin, ok
}

type originInputs struct {
	origin  string
	inputs  []string
	backmap map[string]string
}

// Dispatch builds the dispatched calls for ops. originIDs fixes the iteration
// order so the output is deterministic.
//
// Batch-capable operations produce one call carrying every usable id. If two
// requested ids share a dispatchable identifier they are split across calls so
// each dispatched id still maps to a single origin. Other operations produce
// one call per requested id. Operations with no usable id are skipped.
func Dispatch(ctx context.Context, ops []metakg.Operation, originIDs []string, resolution idresolver.Resolution) []DispatchedOperation {
	logger := logging.FromContext(ctx)
	var out []DispatchedOperation

	for _, op := range ops {
		namespace := op.Association.InputIDNamespace
		var usable []originInputs
		for _, origin := range setutil.Unique(originIDs) {
			rec, ok := resolution.Record(origin)
			if !ok {
				continue
			}
			inputs := setutil.Unique(rec.NamespaceIDs[namespace])
			if len(inputs) == 0 {
				logger.Debug("operation has no usable input for id",
					slog.String("operation", op.Key()),
					slog.String("id", origin),
					slog.String("namespace", namespace),
				)
				continue
			}
			usable = append(usable, originInputs{
				origin:  origin,
				inputs:  inputs,
				backmap: backmapFor(origin, namespace, inputs, rec.EquivalentIdentifiers),
			})
		}

		if len(usable) == 0 {
			logger.Debug("skipping operation without usable inputs", slog.String("operation", op.Key()))
			continue
		}

		if !op.SupportsBatch {
			for _, u := range usable {
				out = append(out, DispatchedOperation{
					Operation:        op,
					Inputs:           u.inputs,
					OriginalInputMap: u.backmap,
				})
			}
			continue
		}

		out = append(out, batchCalls(op, usable)...)
	}
	return out
}

// batchCalls packs origins into as few calls as possible without letting a
// dispatched id point at two origins.
func batchCalls(op metakg.Operation, usable []originInputs) []DispatchedOperation {
	var calls []DispatchedOperation
	for _, u := range usable {
		placed := false
		for i := range calls {
			if collides(calls[i].OriginalInputMap, u.backmap) {
				continue
			}
			calls[i].Inputs = append(calls[i].Inputs, u.inputs...)
			for k, v := range u.backmap {
				calls[i].OriginalInputMap[k] = v
			}
			placed = true
			break
		}
		if placed {
			continue
		}
		backmap := make(map[string]string, len(u.backmap))
		for k, v := range u.backmap {
			backmap[k] = v
		}
		calls = append(calls, DispatchedOperation{
			Operation:        op,
			Inputs:           append([]string(nil), u.inputs...),
			OriginalInputMap: backmap,
		})
	}
	return calls
}

func collides(existing, candidate map[string]string) bool {
	for k, v := range candidate {
		if other, ok := existing[k]; ok && other != v {
			return true
		}
	}
	return false
}

// backmapFor maps every equivalent identifier in namespace, and every id that
// will be sent, back to origin.
func backmapFor(origin, namespace string, inputs, equivalents []string) map[string]string {
	backmap := make(map[string]string, len(inputs)+len(equivalents))
	prefix := namespace + ":"
	for _, eq := range equivalents {
		if strings.HasPrefix(eq, prefix) {
			backmap[eq] = origin
		}
	}
	for _, in := range inputs {
		backmap[in] = origin
	}
	return backmap
}
