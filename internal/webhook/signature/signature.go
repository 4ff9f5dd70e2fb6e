package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
)

// Manifest is the string the provider signs for a notification.
func Manifest(dataID, requestID, ts string) string {
	return "id:" + dataID + ";request-id:" + requestID + ";ts:" + ts + ";"
}

// Sign computes the hex HMAC-SHA256 of the manifest.
func Sign(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(Manifest(dataID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate checks an x-signature header of the form "ts=<ts>,v1=<hash>".
func Validate(header, requestID, dataID, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	ts, v1, ok := parseHeader(header)
	if !ok {
		return false
	}
	expected := Sign(secret, dataID, requestID, ts)
	return hmac.Equal([]byte(strings.ToLower(v1)), []byte(expected))
}

func parseHeader(header string) (string, string, bool) {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "ts":
			ts = strings.TrimSpace(keyValue[1])
		case "v1":
			v1 = strings.TrimSpace(keyValue[1])
		}
	}
	if ts == "" || v1 == "" {
		return "", "", false
	}
	return ts, v1, true
}

// Decision is the outcome of applying the signature policy to a delivery.
type Decision string

const (
	DecisionRequired Decision = "required"
	// DecisionExempt applies only to IPN deliveries that carry no x-signature header.
	DecisionExempt Decision = "exempt"
)

type Policy struct{}

func (Policy) Requires(format domain.EventFormat, header string) Decision {
	if format == domain.FormatIPN && strings.TrimSpace(header) == "" {
		return DecisionExempt
	}
	return DecisionRequired
}
