package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	currencydomain "github.com/smallbiznis/obrapay/internal/currency/domain"
)

type upsertCurrencyRequest struct {
	Symbol       string  `json:"symbol"`
	IsDefault    bool    `json:"is_default"`
	IsSecondary  bool    `json:"is_secondary"`
	ExchangeRate float64 `json:"exchange_rate"`
}

type setRateRequest struct {
	Rate *float64 `json:"rate"`
}

func (s *Server) GetFinancialSummary(c *gin.Context) {
	summary, err := s.currencySvc.Summarize(c.Request.Context(), currencydomain.SummaryRequest{
		OrganizationID: orgIDFromContext(c),
		Mode:           strings.TrimSpace(c.Query("mode")),
		Preference:     string(displayPreference(c)),
		GroupBy:        strings.TrimSpace(c.Query("group_by")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) UpsertCurrency(c *gin.Context) {
	var req upsertCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	currency, err := s.currencySvc.Upsert(c.Request.Context(), currencydomain.UpsertRequest{
		OrganizationID: orgIDFromContext(c),
		Code:           c.Param("code"),
		Symbol:         req.Symbol,
		IsDefault:      req.IsDefault,
		IsSecondary:    req.IsSecondary,
		ExchangeRate:   req.ExchangeRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": currency})
}

func (s *Server) SetCurrencyRate(c *gin.Context) {
	var req setRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Rate == nil {
		AbortWithError(c, newValidationError("rate", "required", "rate is required"))
		return
	}

	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if err := s.currencySvc.SetLiveRate(c.Request.Context(), orgIDFromContext(c), code, *req.Rate); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"code": code, "rate": *req.Rate}})
}
