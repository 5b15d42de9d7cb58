package admob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/fakeadnet"
	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/middleware"
	"github.com/patrickwarner/admob-go/internal/observability"
	"github.com/patrickwarner/admob-go/internal/payload"
	"github.com/patrickwarner/admob-go/internal/visit"
)

func setup(t *testing.T, mutate func(*config.Config)) (*Client, *fakeadnet.Server, *observability.MockMetricsRegistry) {
	t.Helper()
	fake := fakeadnet.New(nil)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Endpoint = srv.URL
	if mutate != nil {
		mutate(&cfg)
	}
	metrics := observability.NewMockMetricsRegistry()
	return NewClient(cfg, zap.NewNop(), metrics), fake, metrics
}

func inboundRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://testserver/", nil)
	r.RemoteAddr = "127.0.0.1:4321"
	r.Header.Set("User-Agent", "Test")
	return r
}

// withVisit mimics the cookie middleware installing a visit.
func withVisit(r *http.Request, cfg config.Config) (*http.Request, *visit.Visit) {
	v := visit.New(r, cfg)
	return r.WithContext(visit.NewContext(r.Context(), v)), v
}

func TestFetchAdScenario(t *testing.T) {
	client, fake, metrics := setup(t, nil)
	r, v := withVisit(inboundRequest(), client.Config())

	body, err := client.Ad(r.Context(), r, payload.Params{PublisherID: payload.String("pub123")}, false)
	require.NoError(t, err)
	assert.Contains(t, body, "pub123")

	sent := fake.Last()
	require.NotNil(t, sent)
	assert.Equal(t, "0", sent.Get("rt"))
	assert.Equal(t, "pub123", sent.Get("s"))
	assert.Len(t, sent.Get("o"), 32)
	_, hasAnalytics := sent["a"]
	assert.False(t, hasAnalytics)

	id, ok := v.Identifier()
	require.True(t, ok)
	assert.Equal(t, id.Value, sent.Get("o"))
	assert.True(t, id.Generated())
	assert.Equal(t, visit.Called, v.State())
	assert.Equal(t, 1, metrics.FetchCount("ad", "success"))
	assert.Equal(t, 1, metrics.Identifiers)
}

func TestFetchReusesIdentifierWithinRequest(t *testing.T) {
	client, fake, metrics := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.AnalyticsID = "ana456"
	})
	r, _ := withVisit(inboundRequest(), client.Config())

	_, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	_, err = client.Analytics(r.Context(), r, payload.Params{Event: payload.String("signup")}, false)
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].Get("o"), reqs[1].Get("o"))
	assert.Equal(t, "1", reqs[1].Get("rt"))
	assert.Equal(t, "ana456", reqs[1].Get("a"))
	assert.Equal(t, "signup", reqs[1].Get("event"))
	assert.Equal(t, 1, metrics.Identifiers, "identifier generated once per request")
}

func TestFetchUsesExistingCookie(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) { c.PublisherID = "pub123" })
	in := inboundRequest()
	in.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "abc123"})
	r, v := withVisit(in, client.Config())

	_, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.Equal(t, "abc123", fake.Last().Get("o"))

	id, _ := v.Identifier()
	assert.Equal(t, identity.OriginExisting, id.Origin)
}

func TestFetchWithoutVisit(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) { c.PublisherID = "pub123" })
	r := inboundRequest()

	_, err := client.Ad(context.Background(), r, payload.Params{}, false)
	require.NoError(t, err)
	_, err = client.Ad(context.Background(), r, payload.Params{}, false)
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].Get("o"), reqs[1].Get("o"), "no shared visit, no shared identifier")
}

func TestFetchTimeoutFailSilently(t *testing.T) {
	client, fake, metrics := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.Timeout = 50 * time.Millisecond
	})
	fake.SetDelay(2 * time.Second)
	r, _ := withVisit(inboundRequest(), client.Config())

	start := time.Now()
	body, err := client.Ad(r.Context(), r, payload.Params{}, true)
	require.NoError(t, err)
	assert.Equal(t, "", body)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, metrics.FetchCount("ad", "failure"))
}

func TestFetchTimeoutPropagates(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) { c.PublisherID = "pub123" })
	fake.SetDelay(2 * time.Second)
	r, _ := withVisit(inboundRequest(), client.Config())

	_, err := client.Ad(r.Context(), r, payload.Params{Timeout: 50 * time.Millisecond}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var failure *NetworkFailure
	require.True(t, errors.As(err, &failure))
	assert.True(t, failure.Timeout())
	assert.Equal(t, payload.ModeAdOnly, failure.Mode)
}

func TestFetchStatusError(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) { c.PublisherID = "pub123" })
	fake.SetStatus(http.StatusInternalServerError)
	r, _ := withVisit(inboundRequest(), client.Config())

	_, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.Error(t, err)
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusInternalServerError, status.StatusCode)

	body, err := client.Ad(r.Context(), r, payload.Params{}, true)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.PublisherID = "pub123"
	client := NewClient(cfg, nil, nil)
	r, _ := withVisit(inboundRequest(), cfg)

	_, err := client.Ad(r.Context(), r, payload.Params{}, false)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetchCancelledContext(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.Timeout = 5 * time.Second
	})
	fake.SetDelay(5 * time.Second)
	r, _ := withVisit(inboundRequest(), client.Config())

	ctx, cancel := context.WithCancel(r.Context())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.Ad(ctx, r, payload.Params{}, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchConfigurationErrorNotSilenced(t *testing.T) {
	client, fake, metrics := setup(t, nil)
	r, v := withVisit(inboundRequest(), client.Config())

	_, err := client.Ad(r.Context(), r, payload.Params{}, true)
	assert.ErrorIs(t, err, payload.ErrConfiguration)
	assert.Empty(t, fake.Requests())
	assert.Equal(t, 1, metrics.FetchCount("ad", "config_error"))
	// the identifier was still resolved for this visit
	assert.Equal(t, visit.Called, v.State())
}

func TestFetchModeNoneIsSent(t *testing.T) {
	client, fake, _ := setup(t, nil)
	r, _ := withVisit(inboundRequest(), client.Config())

	body, err := client.Fetch(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.Empty(t, body)
	_, hasMode := fake.Last()["rt"]
	assert.False(t, hasMode)
}

func TestFetchDoesNotMutateParams(t *testing.T) {
	client, _, _ := setup(t, func(c *config.Config) { c.PublisherID = "pub123" })
	r, _ := withVisit(inboundRequest(), client.Config())

	params := payload.Params{AnalyticsRequest: true, Keywords: payload.String("k")}
	_, err := client.Ad(r.Context(), r, params, false)
	require.NoError(t, err)
	assert.True(t, params.AnalyticsRequest)
	assert.False(t, params.AdRequest)
	assert.Equal(t, "k", *params.Keywords)
}

func TestAnalyticsMaybeAd(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.AnalyticsID = "ana"
	})
	r, _ := withVisit(inboundRequest(), client.Config())

	body, err := client.AnalyticsMaybeAd(r.Context(), r, true, payload.Params{}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Equal(t, "0", fake.Last().Get("rt"))

	body, err = client.AnalyticsMaybeAd(r.Context(), r, false, payload.Params{}, true)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Equal(t, "1", fake.Last().Get("rt"))
}

func TestFetchAppendsPixelOnce(t *testing.T) {
	client, _, _ := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.PixelEnabled = true
	})
	r, _ := withVisit(inboundRequest(), client.Config())

	first, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.Contains(t, first, `<img src="http://p.admob.com/e0?rt=0&amp;`)
	assert.Contains(t, first, "s=pub123")
	assert.Contains(t, first, "to=1")

	second, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.NotContains(t, second, "<img")
}

func TestFetchLogsTestPayload(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	fake := fakeadnet.New(nil)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := config.Default()
	cfg.Endpoint = srv.URL
	cfg.PublisherID = "pub123"
	cfg.TestMode = true
	client := NewClient(cfg, zap.New(core), nil)
	r, _ := withVisit(inboundRequest(), cfg)

	_, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.Equal(t, "test", fake.Last().Get("m"))
	assert.Equal(t, 1, logs.FilterMessage("admob test request").Len())
}

func TestFetchModeNoneSkipsPixel(t *testing.T) {
	client, _, _ := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.PixelEnabled = true
	})
	r, _ := withVisit(inboundRequest(), client.Config())

	body, err := client.Fetch(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.Empty(t, body)

	// the pixel is still owed to the first real call of the request
	ad, err := client.Ad(r.Context(), r, payload.Params{}, false)
	require.NoError(t, err)
	assert.Contains(t, ad, "<img")
	assert.Contains(t, ad, "rt=0")
}

func TestPreview(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) { c.PublisherID = "pub123" })

	p, err := client.Preview(inboundRequest(), payload.Params{AdRequest: true})
	require.NoError(t, err)
	assert.Equal(t, "pub123", p["s"])
	assert.Empty(t, fake.Requests())
}

func TestPixel(t *testing.T) {
	p := payload.Payload{"rt": "2", "z": "1.00", "a": "ana", "s": "pub", "o": "id"}
	got := Pixel("http://p.admob.com/e0", p, 123456*time.Microsecond, 1500*time.Millisecond)
	want := `<img src="http://p.admob.com/e0?rt=2&amp;z=1.00&amp;a=ana&amp;s=pub&amp;o=id&amp;lt=0.1235&amp;to=1.5" alt="" width="1" height="1"/>`
	assert.Equal(t, want, got)
}

// End to end through the cookie middleware, as a host would mount it.
func TestCookiePropagationEndToEnd(t *testing.T) {
	client, _, _ := setup(t, func(c *config.Config) {
		c.PublisherID = "pub123"
		c.AnalyticsID = "ana"
	})
	mw := middleware.CookiePropagation(client.Config(), zap.NewNop(), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ad, err := client.Ad(r.Context(), r, payload.Params{}, true)
		require.NoError(t, err)
		_, err = client.Analytics(r.Context(), r, payload.Params{}, true)
		require.NoError(t, err)
		_, _ = w.Write([]byte(ad))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, inboundRequest())
	var admob []string
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.CookieName {
			admob = append(admob, c.Value)
		}
	}
	require.Len(t, admob, 1)

	// next request carries the cookie: nothing new is set
	next := inboundRequest()
	next.AddCookie(&http.Cookie{Name: identity.CookieName, Value: admob[0]})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, next)
	for _, line := range rec.Header().Values("Set-Cookie") {
		assert.False(t, strings.HasPrefix(line, identity.CookieName+"="), "unexpected Set-Cookie %q", line)
	}
}

func TestAnalyticsHandler(t *testing.T) {
	client, fake, _ := setup(t, func(c *config.Config) { c.AnalyticsID = "ana" })
	mw := middleware.CookiePropagation(client.Config(), nil, nil)

	called := false
	handler := mw(client.AnalyticsHandler(payload.Params{Title: payload.String("Home")}, false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, inboundRequest())
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Home", fake.Last().Get("title"))
	assert.Len(t, rec.Result().Cookies(), 1)

	fake.SetStatus(http.StatusBadGateway)
	called = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, inboundRequest())
	assert.False(t, called)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
