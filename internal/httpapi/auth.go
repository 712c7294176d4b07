package httpapi

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// authDenial describes a rejected request.
type authDenial struct {
	status int
	code   string
	reason string
}

// authorizeRequest checks the static API token. An empty configured
// token disables authentication entirely.
//
// Websocket dials from browsers cannot set request headers, so the
// token is also accepted as a query parameter. Absent and wrong tokens
// produce the same denial.
func authorizeRequest(r *http.Request, apiToken string) *authDenial {
	if apiToken == "" {
		return nil
	}
	provided := bearerToken(r.Header.Get("Authorization"))
	if provided == "" {
		provided = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if provided == "" || !hmac.Equal([]byte(provided), []byte(apiToken)) {
		return &authDenial{
			status: http.StatusUnauthorized,
			code:   "unauthorized",
			reason: "missing or invalid bearer token",
		}
	}
	return nil
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
