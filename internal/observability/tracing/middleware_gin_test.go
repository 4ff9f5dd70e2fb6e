package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/obrapay/internal/observability/context"
	"github.com/smallbiznis/obrapay/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestWithRequestBaggage(t *testing.T) {
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-1")
	_, span := noop.NewTracerProvider().Tracer("test").Start(ctx, "op")

	ctx = withRequestBaggage(ctx, span)

	bag := baggage.FromContext(ctx)
	assert.Equal(t, "req-1", bag.Member("request_id").Value())
	assert.Equal(t, "corr-1", bag.Member("correlation_id").Value())
}

func TestGinMiddlewareSeesWebhookContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())

	var sawBaggage bool
	r.POST("/webhooks/payments/:provider", func(c *gin.Context) {
		sawBaggage = baggage.FromContext(c.Request.Context()).Member("request_id").Value() == "req-9"
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/mercadopago?topic=payment", nil)
	req = req.WithContext(obscontext.WithRequestID(req.Context(), "req-9"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sawBaggage)
}
