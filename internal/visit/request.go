package visit

import (
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
)

// RequestInfo is the slice of an inbound request the payload needs. It is
// captured once so later calls never re-read a request that may have been
// consumed or rewritten by the host.
type RequestInfo struct {
	UserAgent *string
	ClientIP  string
	PageURL   string
	// SessionKey is the raw host session token, nil without a session.
	SessionKey *string
	// Headers maps CGI-style names (HTTP_X_CUSTOM) to joined values.
	Headers map[string]string

	Cookie        string
	CookiePresent bool
}

// Fingerprint returns the inputs mixed into a new visitor identifier.
func (ri RequestInfo) Fingerprint() identity.Fingerprint {
	fp := identity.Fingerprint{ClientIP: ri.ClientIP}
	if ri.UserAgent != nil {
		fp.UserAgent = *ri.UserAgent
	}
	return fp
}

// HeaderNames returns the CGI header names in sorted order.
func (ri RequestInfo) HeaderNames() []string {
	names := make([]string, 0, len(ri.Headers))
	for k := range ri.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ExtractRequestInfo reads the request facts the payload builder needs.
func ExtractRequestInfo(r *http.Request, cfg config.Config) RequestInfo {
	ri := RequestInfo{
		ClientIP: ClientIP(r, cfg.TrustForwardedFor),
		PageURL:  AbsoluteURL(r),
		Headers:  make(map[string]string, len(r.Header)),
	}
	if vals := r.Header.Values("User-Agent"); len(vals) > 0 {
		ua := vals[0]
		ri.UserAgent = &ua
	}
	if cfg.SessionCookieName != "" {
		if c, err := r.Cookie(cfg.SessionCookieName); err == nil && c.Value != "" {
			key := c.Value
			ri.SessionKey = &key
		}
	}
	for name, vals := range r.Header {
		// CGI exposes these without the HTTP_ prefix; they are not forwarded
		if name == "Content-Type" || name == "Content-Length" {
			continue
		}
		ri.Headers[CGIName(name)] = strings.Join(vals, ", ")
	}
	// net/http moves Host out of the header map
	if r.Host != "" {
		ri.Headers["HTTP_HOST"] = r.Host
	}
	ri.Cookie, ri.CookiePresent = identity.FromRequest(r)
	return ri
}

// CGIName converts a canonical header name to its CGI meta variable form,
// e.g. "X-Custom" to "HTTP_X_CUSTOM".
func CGIName(header string) string {
	return "HTTP_" + strings.ToUpper(strings.ReplaceAll(header, "-", "_"))
}

// ClientIP returns the remote address without port. When trustForwarded is
// set the first X-Forwarded-For hop wins.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				xff = xff[:idx]
			}
			return strings.TrimSpace(xff)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// AbsoluteURL rebuilds the absolute URI the client requested.
func AbsoluteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
