package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
)

type paymentResponse struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	TransactionAmount float64        `json:"transaction_amount"`
	CurrencyID        string         `json:"currency_id"`
	Metadata          map[string]any `json:"metadata"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client resolves payments against the Mercado Pago Payments API.
type Client struct {
	baseURL string
	tokens  map[domain.Environment]string
	timeout time.Duration
	client  *http.Client
}

func (c *Client) Resolve(ctx context.Context, paymentID string, env domain.Environment) (domain.PaymentStatus, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.PaymentStatus{}, domain.ErrMissingPaymentID
	}
	token := strings.TrimSpace(c.tokens[env])
	if token == "" {
		return domain.PaymentStatus{}, fmt.Errorf("%w: %s", domain.ErrMissingToken, env)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return domain.PaymentStatus{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.PaymentStatus{}, fmt.Errorf("%w: %v", domain.ErrProviderLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.PaymentStatus{}, domain.ErrPaymentNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var mpErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&mpErr)
		message := strings.TrimSpace(mpErr.Message)
		if message == "" {
			message = strings.TrimSpace(mpErr.Error)
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return domain.PaymentStatus{}, fmt.Errorf("%w: status %d: %s", domain.ErrProviderLookup, resp.StatusCode, message)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payment paymentResponse
	if err := decoder.Decode(&payment); err != nil {
		return domain.PaymentStatus{}, fmt.Errorf("%w: decode: %v", domain.ErrProviderLookup, err)
	}

	id := payment.ID.String()
	if id == "" {
		id = paymentID
	}
	return domain.PaymentStatus{
		ID:           id,
		Status:       strings.ToLower(strings.TrimSpace(payment.Status)),
		Amount:       payment.TransactionAmount,
		CurrencyCode: strings.ToUpper(strings.TrimSpace(payment.CurrencyID)),
		Metadata:     normalizeMetadata(payment.Metadata),
	}, nil
}

// normalizeMetadata flattens metadata values to strings; numbers keep their literal form.
func normalizeMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		switch cast := value.(type) {
		case string:
			out[key] = strings.TrimSpace(cast)
		case json.Number:
			out[key] = cast.String()
		case float64:
			out[key] = strconv.FormatFloat(cast, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(cast)
		case nil:
		default:
			out[key] = fmt.Sprint(cast)
		}
	}
	return out
}

var _ domain.StatusResolver = (*Client)(nil)
