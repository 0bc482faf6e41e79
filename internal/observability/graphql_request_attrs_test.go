package observability

import (
	"context"
	"log/slog"
	"testing"

	"bte-graphql/internal/gqlrequest"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestGraphQLSpanAttributes(t *testing.T) {
	assert.Nil(t, GraphQLSpanAttributes(nil))

	attrs := GraphQLSpanAttributes(&gqlrequest.Analysis{
		Envelope:       gqlrequest.Envelope{DocumentSizeBytes: 40},
		OperationName:  "Q",
		OperationType:  "query",
		OperationHash:  "hash123",
		RootTypes:      []string{"Gene"},
		IDCount:        2,
		Relationships:  1,
		SelectionDepth: 2,
		FieldCount:     4,
	})

	byKey := map[attribute.Key]attribute.Value{}
	for _, kv := range attrs {
		byKey[kv.Key] = kv.Value
	}
	assert.Equal(t, "Q", byKey["graphql.operation.name"].AsString())
	assert.Equal(t, []string{"Gene"}, byKey["graphql.query.root_types"].AsStringSlice())
	assert.Equal(t, int64(2), byKey["graphql.query.ids"].AsInt64())
	assert.Equal(t, int64(2), byKey["graphql.query.depth"].AsInt64())
	assert.Equal(t, int64(40), byKey["graphql.document.size_bytes"].AsInt64())
}

func TestGraphQLLogFieldsIncludesTraceID(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
		Remote:  true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	fields := GraphQLLogFields(ctx, &gqlrequest.Analysis{
		OperationName: "Q",
		OperationType: "query",
		RootTypes:     []string{"Gene", "Disease"},
	})

	keys := map[string]string{}
	for _, f := range fields {
		attr := f.(slog.Attr)
		keys[attr.Key] = attr.Value.String()
	}
	assert.Equal(t, "Gene,Disease", keys["root_types"])
	assert.Equal(t, spanCtx.TraceID().String(), keys["trace_id"])

	assert.Empty(t, GraphQLLogFields(context.Background(), nil))
}
