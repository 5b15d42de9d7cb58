package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/observability"
	"github.com/patrickwarner/admob-go/internal/visit"
)

// Apply writes the admobuu cookie onto h when the visit made an AdMob call
// with a freshly minted identifier and neither the request nor the
// response already carries the cookie. It returns true if it wrote.
//
// Apply settles the visit on first use, so repeated calls never produce a
// second Set-Cookie.
func Apply(v *visit.Visit, h http.Header, cfg config.Config) bool {
	if v == nil {
		return false
	}
	_, settled := v.Settle(func(id identity.Identifier, requestHasCookie bool) bool {
		if !identity.ShouldSetOnResponse(id, requestHasCookie, identity.HasCookie(h)) {
			return false
		}
		c := identity.NewCookie(id.Value, cfg.CookiePath, cfg.CookieDomain)
		if s := c.String(); s != "" {
			h.Add("Set-Cookie", s)
			return true
		}
		return false
	})
	return settled && v.State() == visit.CookieWritten
}

// CookiePropagation installs a visit on every request and makes sure the
// identity cookie chosen while serving it reaches the response. The cookie
// decision happens just before headers are committed, so AdMob calls must
// complete before the handler's first Write; render into a buffer first.
func CookiePropagation(cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, ok := visit.FromContext(r.Context())
			if !ok {
				v = visit.New(r, cfg)
				r = r.WithContext(visit.NewContext(r.Context(), v))
			}

			cw := &cookieWriter{ResponseWriter: w, settle: func(h http.Header) {
				if v.State() != visit.Called {
					return
				}
				if Apply(v, h, cfg) {
					metrics.IncrementCookies("written")
					LoggerFromContext(r.Context(), logger).Debug("admob cookie set")
				} else {
					metrics.IncrementCookies("skipped")
				}
			}}
			next.ServeHTTP(cw, r)
			// handlers that never write still get their headers settled
			cw.commit()
			if v.State() == visit.Called {
				LoggerFromContext(r.Context(), logger).Warn("admob call made after response headers were sent, cookie not set")
			}
		})
	}
}

// cookieWriter runs settle once, immediately before the wrapped writer
// sends its headers.
type cookieWriter struct {
	http.ResponseWriter
	settle    func(http.Header)
	committed bool
}

func (w *cookieWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	w.settle(w.ResponseWriter.Header())
}

func (w *cookieWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

// Flush commits headers before delegating when the writer supports it.
func (w *cookieWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
