package ingress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
)

// Request is the raw inbound webhook delivery.
type Request struct {
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Notification is a delivery classified into one of the provider's notification shapes.
type Notification struct {
	Format    domain.EventFormat
	EventType string
	PaymentID string
	OrderID   string
	LiveMode  *bool
	RequestID string
	Signature string
}

var paymentEventTypes = map[string]struct{}{
	"payment":         {},
	"payment.created": {},
	"payment.updated": {},
}

// IsPaymentEvent reports whether the notification concerns a payment at all.
func (n Notification) IsPaymentEvent() bool {
	_, ok := paymentEventTypes[n.EventType]
	return ok
}

type v2Body struct {
	Type              string          `json:"type"`
	Action            string          `json:"action"`
	Topic             string          `json:"topic"`
	LiveMode          *bool           `json:"live_mode"`
	ExternalReference string          `json:"external_reference"`
	Data              struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// Normalize classifies a delivery as IPN (query topic+id) or V2 (JSON body).
// Malformed bodies decode as empty, which leaves the event unclassified.
func Normalize(req Request) Notification {
	n := Notification{
		RequestID: strings.TrimSpace(req.Header.Get("X-Request-Id")),
		Signature: strings.TrimSpace(req.Header.Get("X-Signature")),
	}

	topic := strings.TrimSpace(req.Query.Get("topic"))
	id := strings.TrimSpace(req.Query.Get("id"))
	if topic != "" && id != "" {
		n.Format = domain.FormatIPN
		n.EventType = strings.ToLower(topic)
		n.PaymentID = id
		return n
	}

	var body v2Body
	if len(bytes.TrimSpace(req.Body)) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			body = v2Body{}
		}
	}

	n.Format = domain.FormatV2
	n.EventType = strings.ToLower(firstNonEmpty(body.Type, body.Action, body.Topic, req.Query.Get("type")))
	n.PaymentID = firstNonEmpty(rawID(body.Data.ID), req.Query.Get("data.id"))
	n.OrderID = strings.TrimSpace(body.ExternalReference)
	n.LiveMode = body.LiveMode
	if n.EventType == "" {
		n.Format = domain.FormatUnknown
	}
	return n
}

// rawID accepts data.id as either a JSON string or a JSON number.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
