package quota

import (
	"net/http"
	"strings"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// IdentityFromRequest derives the quota identity of an HTTP caller: the first
// X-Forwarded-For entry, then X-Real-IP, then UnknownIdentity. The headers are
// not verified.
func IdentityFromRequest(r *http.Request) string {
	if r == nil {
		return UnknownIdentity
	}

	if forwarded := r.Header.Get(headerForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get(headerRealIP)); realIP != "" {
		return realIP
	}

	return UnknownIdentity
}
