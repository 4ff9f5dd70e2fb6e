package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/obrapay/internal/currency/convert"
)

const (
	HeaderCurrencyDisplay = "X-Currency-Display"
	CookieCurrencyDisplay = "currency_display"

	contextOrgIDKey = "org_id"
)

// RequireOrgID rejects requests whose :org_id path segment is blank.
func RequireOrgID() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := strings.TrimSpace(c.Param("org_id"))
		if orgID == "" {
			AbortWithError(c, newValidationError("org_id", "required", "org_id is required"))
			return
		}
		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

func orgIDFromContext(c *gin.Context) string {
	return c.GetString(contextOrgIDKey)
}

// displayPreference reads the caller's currency display preference from the
// header, then the cookie. Values that do not parse are ignored.
func displayPreference(c *gin.Context) convert.Preference {
	if pref, ok := parsePreference(c.GetHeader(HeaderCurrencyDisplay)); ok {
		return pref
	}
	if raw, err := c.Cookie(CookieCurrencyDisplay); err == nil {
		if pref, ok := parsePreference(raw); ok {
			return pref
		}
	}
	return convert.PreferPrimary
}

func parsePreference(raw string) (convert.Preference, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	pref, err := convert.ParsePreference(raw)
	if err != nil {
		return "", false
	}
	return pref, true
}
