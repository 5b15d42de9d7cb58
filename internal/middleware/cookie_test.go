package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/observability"
	"github.com/patrickwarner/admob-go/internal/visit"
)

func admobCookies(h http.Header) []string {
	var out []string
	for _, line := range h.Values("Set-Cookie") {
		if strings.HasPrefix(line, identity.CookieName+"=") {
			out = append(out, line)
		}
	}
	return out
}

// simulateCall does what an AdMob fetch does to the visit.
func simulateCall(v *visit.Visit) identity.Identifier {
	id, _ := v.Identify(identity.Generator{})
	v.MarkPending()
	return id
}

func TestApplyNoCallIsNoop(t *testing.T) {
	v := visit.New(httptest.NewRequest(http.MethodGet, "/", nil), config.Default())
	h := http.Header{}
	assert.False(t, Apply(v, h, config.Default()))
	assert.Empty(t, admobCookies(h))
	assert.Equal(t, visit.NoCall, v.State())
	assert.False(t, Apply(nil, h, config.Default()))
}

func TestApplyWritesOnce(t *testing.T) {
	cfg := config.Default()
	cfg.CookieDomain = "example.com"
	cfg.CookiePath = "/ads"

	v := visit.New(httptest.NewRequest(http.MethodGet, "/", nil), cfg)
	id := simulateCall(v)

	h := http.Header{}
	require.True(t, Apply(v, h, cfg))
	require.False(t, Apply(v, h, cfg))

	cookies := admobCookies(h)
	require.Len(t, cookies, 1)
	assert.Contains(t, cookies[0], "admobuu="+id.Value)
	assert.Contains(t, cookies[0], "Path=/ads")
	assert.Contains(t, cookies[0], "Domain=example.com")
	assert.Contains(t, cookies[0], "Expires=Tue, 19 Jan 2038 03:14:07 GMT")
	assert.Equal(t, visit.CookieWritten, v.State())
}

func TestApplySkipsExistingRequestCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "abc123"})
	v := visit.New(r, config.Default())
	id := simulateCall(v)
	assert.Equal(t, "abc123", id.Value)

	h := http.Header{}
	assert.False(t, Apply(v, h, config.Default()))
	assert.Empty(t, admobCookies(h))
	assert.Equal(t, visit.CookieSkipped, v.State())
}

func TestApplySkipsWhenResponseAlreadyHasCookie(t *testing.T) {
	v := visit.New(httptest.NewRequest(http.MethodGet, "/", nil), config.Default())
	simulateCall(v)

	h := http.Header{}
	h.Add("Set-Cookie", identity.NewCookie("other", "/", "").String())
	assert.False(t, Apply(v, h, config.Default()))
	assert.Len(t, admobCookies(h), 1)
	assert.Equal(t, visit.CookieSkipped, v.State())
}

func TestCookiePropagationMiddleware(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	mw := CookiePropagation(config.Default(), zap.NewNop(), metrics)

	var seen identity.Identifier
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := visit.FromContext(r.Context())
		require.True(t, ok)
		seen = simulateCall(v)
		// a second call in the same request reuses the identifier
		again := simulateCall(v)
		assert.Equal(t, seen, again)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := admobCookies(rec.Header())
	require.Len(t, cookies, 1)
	assert.Contains(t, cookies[0], seen.Value)
	assert.Equal(t, 1, metrics.CookieCount("written"))
}

func TestCookiePropagationWithoutWrite(t *testing.T) {
	mw := CookiePropagation(config.Default(), nil, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := visit.FromContext(r.Context())
		simulateCall(v)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, admobCookies(rec.Header()), 1)
}

func TestCookiePropagationWithoutCall(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	mw := CookiePropagation(config.Default(), zap.NewNop(), metrics)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, admobCookies(rec.Header()))
	assert.Equal(t, 0, metrics.CookieCount("written"))
	assert.Equal(t, 0, metrics.CookieCount("skipped"))
}

func TestCookiePropagationExistingCookie(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	mw := CookiePropagation(config.Default(), zap.NewNop(), metrics)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := visit.FromContext(r.Context())
		simulateCall(v)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "abc123"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, admobCookies(rec.Header()))
	assert.Equal(t, 1, metrics.CookieCount("skipped"))
}

func TestCookiePropagationLateCallWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mw := CookiePropagation(config.Default(), zap.New(core), nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("streamed"))
		v, _ := visit.FromContext(r.Context())
		simulateCall(v)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, admobCookies(rec.Header()))
	assert.Equal(t, 1, logs.FilterMessageSnippet("after response headers").Len())
}

func TestLoggerFromContextAddsVisitor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	v := visit.New(r, config.Default())
	id := simulateCall(v)
	ctx := visit.NewContext(r.Context(), v)

	LoggerFromContext(ctx, zap.New(core)).Info("hello")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, id.Value, logs.All()[0].ContextMap()["visitor_id"])
}
