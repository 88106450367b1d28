package dpopmiddleware

import (
	"net/http"
	"strings"
)

// CanonicalRequestURL derives the URL used for DPoP htu comparison from the
// incoming request. trustProxy is the application-wide trust policy, set once
// at startup: when false, forwarded headers are never consulted and the
// result is the literal URL the transport observed; no untrusted header can
// influence it. When true, the service sits behind a trusted reverse proxy
// that sanitizes its own headers, and scheme, host and path prefix may each
// be overridden independently:
//
//   - X-Forwarded-Proto: trimmed and lower-cased; only the literal values
//     http and https are accepted, anything else is ignored.
//   - X-Forwarded-Host: the segment before the first comma (closest to the
//     client), trimmed, used verbatim including any port.
//   - X-Forwarded-Prefix: prepended to the path after normalization, unless
//     it smells like an injection attempt (see safeForwardedPrefix), in
//     which case it is dropped outright.
//
// The query string is preserved and the fragment is always dropped.
func CanonicalRequestURL(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	path := r.URL.EscapedPath()
	query := r.URL.RawQuery

	if trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			proto = strings.ToLower(strings.TrimSpace(proto))
			if proto == "http" || proto == "https" {
				scheme = proto
			}
		}

		if forwardedHost := firstForwardedValue(r.Header.Get("X-Forwarded-Host")); forwardedHost != "" {
			host = forwardedHost
		}

		if prefix := strings.TrimSpace(r.Header.Get("X-Forwarded-Prefix")); prefix != "" {
			if normalized, ok := safeForwardedPrefix(prefix); ok {
				path = normalized + path
			}
		}
	}

	canonical := scheme + "://" + host + path
	if query != "" {
		canonical += "?" + query
	}
	return canonical
}

// firstForwardedValue takes the left-hand segment of a comma-separated
// forwarded header, which is the value closest to the client.
func firstForwardedValue(header string) string {
	if i := strings.IndexByte(header, ','); i >= 0 {
		header = header[:i]
	}
	return strings.TrimSpace(header)
}

// safeForwardedPrefix normalizes a forwarded path prefix to a single leading
// slash with no trailing slash. A prefix carrying a traversal segment, a
// protocol-relative leading double slash, a colon, a NUL byte or a
// percent-encoded traversal is rejected entirely: prepending a sanitized
// fraction of a hostile prefix would still let an attacker move the htu
// comparison outside the intended path.
func safeForwardedPrefix(prefix string) (string, bool) {
	if strings.Contains(prefix, "..") ||
		strings.HasPrefix(prefix, "//") ||
		strings.ContainsAny(prefix, ":\x00") ||
		strings.Contains(strings.ToLower(prefix), "%2e%2e") {
		return "", false
	}

	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix, true
}
