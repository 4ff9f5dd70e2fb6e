package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/webhooks/payments/:provider", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/webhooks/payments/:provider", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, logs
}

func TestGinMiddlewareWebhookFields(t *testing.T) {
	r, logs := newObservedEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/mercadopago?topic=payment&data.id=77", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderCorrelationID, "corr-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "corr-1", w.Header().Get(HeaderCorrelationID))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "mercadopago", fields["provider"])
	assert.Equal(t, "payment", fields["topic"])
	assert.Equal(t, "77", fields["data_id"])
	assert.Equal(t, "corr-1", fields["correlation_id"])
}

func TestGinMiddlewareReplacesInvalidCorrelationID(t *testing.T) {
	r, _ := newObservedEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/mercadopago", nil)
	req.Header.Set(HeaderCorrelationID, "bad id with spaces")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	got := w.Header().Get(HeaderCorrelationID)
	assert.NotEmpty(t, got)
	assert.NotEqual(t, "bad id with spaces", got)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestGinMiddlewareLivenessLogsAtDebug(t *testing.T) {
	r, logs := newObservedEngine(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/webhooks/payments/mercadopago", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}
