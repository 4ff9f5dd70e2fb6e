package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/obrapay/internal/observability/context"
	"github.com/smallbiznis/obrapay/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	HeaderRequestID     = "X-Request-Id"
	HeaderCorrelationID = "X-Correlation-Id"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware seeds request and correlation ids on the request context and
// writes one http_request line per request. Bodies are never logged.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx, correlationID := correlation.Inbound(ctx, c.GetHeader(HeaderCorrelationID))
		c.Header(HeaderCorrelationID, correlationID)
		if orgID := strings.TrimSpace(c.Param("org_id")); orgID != "" {
			ctx = obscontext.WithOrgID(ctx, orgID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", nonNegative(c.Request.ContentLength)),
			zap.Int64("bytes_out", nonNegative(int64(c.Writer.Size()))),
		}
		fields = append(fields, webhookFields(c)...)

		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		logRequest(FromContext(c.Request.Context()), c.Request.Method, route, status, fields)
	}
}

// ensureRequestID keeps the provider's X-Request-Id intact; webhook signatures are computed over it.
func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	generated := requestID == ""
	if generated {
		requestID = uuid.NewString()
	}

	c.Set("request_id", requestID)
	c.Set("request_id_generated", generated)
	c.Header(HeaderRequestID, requestID)
	return requestID
}

// webhookFields names the provider and notified payment without touching the body.
func webhookFields(c *gin.Context) []zap.Field {
	provider := strings.TrimSpace(c.Param("provider"))
	if provider == "" {
		return nil
	}
	fields := []zap.Field{zap.String("provider", provider)}
	query := c.Request.URL.Query()
	if topic := strings.TrimSpace(query.Get("topic")); topic != "" {
		fields = append(fields, zap.String("topic", topic))
	}
	if id := firstNonEmpty(query.Get("id"), query.Get("data.id")); id != "" {
		fields = append(fields, zap.String("data_id", id))
	}
	return fields
}

func logRequest(log *zap.Logger, method, route string, status int, fields []zap.Field) {
	if log == nil {
		return
	}

	switch {
	case isHealthCheck(method, route):
		log.Debug("http_request", fields...)
	case status >= http.StatusInternalServerError:
		log.Error("http_request", fields...)
	case status >= http.StatusBadRequest:
		log.Warn("http_request", fields...)
	default:
		log.Info("http_request", fields...)
	}
}

// isHealthCheck covers health, scrape and provider liveness checks.
func isHealthCheck(method, route string) bool {
	switch route {
	case "/health", "/metrics":
		return true
	case "/webhooks/payments/:provider":
		return method == http.MethodGet
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonNegative(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}
