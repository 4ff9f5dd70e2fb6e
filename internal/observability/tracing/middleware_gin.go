package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/obrapay/internal/observability/context"
	"github.com/smallbiznis/obrapay/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var untracedPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware opens a server span per request. Health and scrape paths are not traced.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("obrapay/http")
	return func(c *gin.Context) {
		if _, skip := untracedPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status, time.Since(start))...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// withRequestBaggage propagates request and correlation ids to downstream calls.
func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	ids := map[string]string{
		"request_id":     obscontext.RequestIDFromContext(ctx),
		"correlation_id": correlation.ExtractCorrelationID(ctx),
	}

	bag := baggage.FromContext(ctx)
	for key, value := range ids {
		if value == "" {
			continue
		}
		span.SetAttributes(attribute.String(key, value))
		member, err := baggage.NewMember(key, value)
		if err != nil {
			continue
		}
		if next, err := bag.SetMember(member); err == nil {
			bag = next
		}
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func requestAttributes(c *gin.Context, route string, status int, elapsed time.Duration) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	if provider := c.Param("provider"); provider != "" {
		attrs = append(attrs, attribute.String("provider", provider))
		if topic := c.Query("topic"); topic != "" {
			attrs = append(attrs, attribute.String("webhook.topic", topic))
		}
	}
	if orgID := c.Param("org_id"); orgID != "" {
		attrs = append(attrs, attribute.String("org_id", orgID))
	}
	return attrs
}
