package observability

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceResource(t *testing.T) {
	res, err := serviceResource(Config{ServiceName: "bte-graphql", ServiceVersion: "dev", Environment: "staging"})
	require.NoError(t, err)

	for key, want := range map[string]string{
		"service.name":           "bte-graphql",
		"service.version":        "dev",
		"deployment.environment": "staging",
	} {
		got, ok := res.Set().Value(attribute.Key(key))
		require.True(t, ok, key)
		assert.Equal(t, want, got.AsString(), key)
	}
}

func TestParseOTLPProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    otlpProtocol
		wantErr bool
	}{
		{in: "", want: otlpProtocolGRPC},
		{in: "GRPC", want: otlpProtocolGRPC},
		{in: "http", want: otlpProtocolHTTP},
		{in: " http/protobuf ", want: otlpProtocolHTTP},
		{in: "udp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOTLPProtocol(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTraceExporter(t *testing.T) {
	ctx := context.Background()
	configs := map[string]OTLPExporterConfig{
		"grpc collector": {Endpoint: "127.0.0.1:4317", Protocol: "grpc", Insecure: true, Compression: "gzip"},
		"http endpoint url": {
			Endpoint: "http://127.0.0.1:4318/v1/traces",
			Protocol: "http/protobuf",
			Insecure: true,
			Headers:  map[string]string{"x-team": "translator"},
			Timeout:  time.Second,
		},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			exporter, err := newTraceExporter(ctx, cfg)
			require.NoError(t, err)
			assert.NoError(t, exporter.Shutdown(ctx))
		})
	}

	_, err := newTraceExporter(ctx, OTLPExporterConfig{Endpoint: "127.0.0.1:4317", Protocol: "thrift"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")

	_, err = newTraceExporter(ctx, OTLPExporterConfig{
		Endpoint:    "collector:4317",
		TLSCertFile: filepath.Join(t.TempDir(), "missing-ca.pem"),
	})
	assert.ErrorContains(t, err, "failed to read OTLP TLS CA file")
}

func TestNewLogExporter(t *testing.T) {
	ctx := context.Background()
	exporter, err := newLogExporter(ctx, OTLPExporterConfig{Endpoint: "127.0.0.1:4318", Protocol: "http", Insecure: true})
	require.NoError(t, err)
	assert.NoError(t, exporter.Shutdown(ctx))
}

func TestInitMeterProvider_ServesServiceMetrics(t *testing.T) {
	previous := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	mp, err := InitMeterProvider(Config{ServiceName: "bte-graphql", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.Exporter())
	defer func() { _ = mp.Shutdown(context.Background(), discardLogger()) }()

	graphql, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, graphql)

	upstream, err := InitUpstreamMetrics(discardLogger())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		upstream.RecordCall(context.Background(), "MyGene.info API", time.Millisecond, OutcomeSuccess, 1)
	})
}

func TestTraceSamplerForRatio(t *testing.T) {
	sampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	unsampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))

	tests := []struct {
		name   string
		ratio  float64
		parent context.Context
		want   sdktrace.SamplingDecision
	}{
		{name: "zero drops", ratio: 0, parent: context.Background(), want: sdktrace.Drop},
		{name: "one samples", ratio: 1, parent: context.Background(), want: sdktrace.RecordAndSample},
		{name: "mid range follows sampled parent", ratio: 0.5, parent: sampledParent, want: sdktrace.RecordAndSample},
		{name: "mid range follows unsampled parent", ratio: 0.5, parent: unsampledParent, want: sdktrace.Drop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := traceSamplerForRatio(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.parent,
				TraceID:       trace.TraceID{9},
				Name:          "graphql.execute",
			}).Decision
			assert.Equal(t, tt.want, decision)
		})
	}
}
