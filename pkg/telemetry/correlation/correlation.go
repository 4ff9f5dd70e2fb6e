package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Fields returns the correlation and trace identifiers carried by ctx, for event metadata.
func Fields(ctx context.Context) map[string]string {
	_, cid := EnsureCorrelationID(ctx)
	out := map[string]string{"correlation_id": cid}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		out["trace_id"] = sc.TraceID().String()
		out["span_id"] = sc.SpanID().String()
	}
	return out
}

const maxInboundLength = 64

// Inbound adopts a caller supplied correlation id when it is short and made of
// [A-Za-z0-9_-]; otherwise a fresh ULID is generated.
func Inbound(ctx context.Context, raw string) (context.Context, string) {
	raw = strings.TrimSpace(raw)
	if validInbound(raw) {
		return ContextWithCorrelationID(ctx, raw), raw
	}
	return EnsureCorrelationID(ctx)
}

func validInbound(raw string) bool {
	if raw == "" || len(raw) > maxInboundLength {
		return false
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
