package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

type lookupError struct{ body string }

func (e *lookupError) Error() string { return e.body }

func TestSafeAttributesDropsPayloadKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/webhooks/payments/:provider"),
		attribute.String("payload", `{"data":{"id":"1"}}`),
		attribute.String("provider", "mercadopago"),
	)
	assert.Len(t, attrs, 2)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &lookupError{body: "token=secret"})
	safe := SafeError(err)
	assert.NotContains(t, safe.Error(), "secret")
	assert.Equal(t, "*tracing.lookupError", safe.Error())
	assert.Nil(t, SafeError(nil))
	assert.Equal(t, "*errors.errorString", SafeError(errors.New("x")).Error())
}
