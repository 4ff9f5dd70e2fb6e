package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	_, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "cid-1", cid)

	ctx, generated := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, ExtractCorrelationID(ctx))
}

func TestInbound(t *testing.T) {
	ctx, cid := Inbound(context.Background(), " order-42_retry ")
	assert.Equal(t, "order-42_retry", cid)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))

	_, generated := Inbound(context.Background(), "bad id; drop table")
	assert.NotEqual(t, "bad id; drop table", generated)
	assert.Len(t, generated, 26)
}

func TestFieldsIncludeSpan(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	fields := Fields(ctx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.NotEmpty(t, fields["correlation_id"])
}
