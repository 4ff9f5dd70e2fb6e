package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/obrapay/internal/webhook/ingress"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

type webhookResponse struct {
	Received bool   `json:"received"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HandlePaymentWebhook always answers 200 so the provider stops retrying;
// diagnostics travel in the body.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	switch {
	case err != nil:
		s.log.Warn("failed to read webhook body", zap.String("provider", provider), zap.Error(err))
		payload = nil
	case len(payload) > maxWebhookBodyBytes:
		s.log.Warn("webhook body exceeds limit, ignoring body",
			zap.String("provider", provider),
			zap.Int("limit_bytes", maxWebhookBodyBytes),
		)
		payload = nil
	}

	result := s.webhookSvc.Ingest(c.Request.Context(), provider, ingress.Request{
		Query:  c.Request.URL.Query(),
		Body:   payload,
		Header: c.Request.Header,
	})

	c.JSON(http.StatusOK, webhookResponse{
		Received: true,
		Skipped:  result.Skipped,
		Error:    result.Error,
	})
}

func (s *Server) PaymentWebhookLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
