// Package device turns raw User-Agent strings into the short display names
// recorded in audit events, and provides the middleware that captures them.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent renders a user agent as "Browser on OS". Unknown parts
// degrade to placeholders rather than empty strings.
func ParseUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(ua)

	browser, _ := parsed.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	os := parsed.OSInfo().Name
	if os == "" {
		os = parsed.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}

	return browser + " on " + os
}

// Capture stores the request's device display name in the context so audit
// events can record which device performed an operation.
func Capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ParseUserAgent(r.UserAgent())
		next.ServeHTTP(w, r.WithContext(WithDeviceName(r.Context(), name)))
	})
}
