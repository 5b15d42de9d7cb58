package admob

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/middleware"
	"github.com/patrickwarner/admob-go/internal/payload"
)

// AnalyticsHandler returns middleware that reports an analytics hit before
// serving each request. Mount it inside CookiePropagation so the visitor
// identifier is shared with the handler and propagated.
//
// With failSilently unset a failed call ends the request with a 502, or a
// 500 for configuration errors, and next is not invoked.
func (c *Client) AnalyticsHandler(params payload.Params, failSilently bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := c.Analytics(r.Context(), r, params, failSilently); err != nil {
				middleware.LoggerFromRequest(r, c.logger).Error("analytics decorator", zap.Error(err))
				var failure *NetworkFailure
				if errors.As(err, &failure) {
					http.Error(w, "analytics unavailable", http.StatusBadGateway)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
