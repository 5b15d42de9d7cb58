// Package payload assembles the form body posted to AdMob from three
// layers: process configuration, per-call parameters and request facts.
package payload

import (
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/visit"
)

// defaultFormat is sent as f on ad requests that name no format.
const defaultFormat = "html"

// ignoredHeaders are never forwarded as h[...]: user agent and cookie have
// dedicated fields and the rest are hop-by-hop or cache control.
var ignoredHeaders = map[string]struct{}{
	"HTTP_PRAGMA":        {},
	"HTTP_CACHE_CONTROL": {},
	"HTTP_CONNECTION":    {},
	"HTTP_USER_AGENT":    {},
	"HTTP_COOKIE":        {},
}

// IgnoredHeader reports whether a CGI header name is on the deny list.
func IgnoredHeader(cgiName string) bool {
	_, ok := ignoredHeaders[cgiName]
	return ok
}

// Payload maps short wire keys to values. A key is either present with a
// value (possibly "") or absent.
type Payload map[string]string

// Get returns the value for key and whether it is present.
func (p Payload) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Values converts the payload to url.Values.
func (p Payload) Values() url.Values {
	vals := make(url.Values, len(p))
	for k, v := range p {
		vals.Set(k, v)
	}
	return vals
}

// Encode renders the payload as an URL-encoded form sorted by key.
func (p Payload) Encode() string {
	return p.Values().Encode()
}

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builder assembles payloads. It holds only immutable configuration and is
// safe for concurrent use.
type Builder struct {
	cfg config.Config
	now func() time.Time
}

// NewBuilder returns a Builder over cfg using the wall clock.
func NewBuilder(cfg config.Config) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of b reading time from now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	cp := *b
	cp.now = now
	return &cp
}

// Build assembles the payload for one call. Nil values are dropped at the
// end; empty strings survive.
func (b *Builder) Build(mode Mode, params Params, info visit.RequestInfo, id identity.Identifier) (Payload, error) {
	fields := map[string]*string{
		"rt": mode.Code(),
		"z":  str(strconv.FormatFloat(float64(b.now().UnixMilli())/1000, 'f', 2, 64)),
		"u":  info.UserAgent,
		"i":  str(info.ClientIP),
		"p":  orDefault(params.Page, info.PageURL),
		"t":  sessionDigest(info.SessionKey),
		"v":  str(b.cfg.PubcodeVersion),
		"o":  str(id.Value),
	}

	for _, name := range info.HeaderNames() {
		if IgnoredHeader(name) {
			continue
		}
		fields["h["+name+"]"] = str(info.Headers[name])
	}

	if test := params.Test; (test != nil && *test) || (test == nil && b.cfg.TestMode) {
		fields["m"] = str("test")
	}

	if mode.Analytics() {
		analyticsID := orDefault(params.AnalyticsID, b.cfg.AnalyticsID)
		if *analyticsID == "" {
			return nil, &ConfigurationError{Field: "analytics id", Mode: mode}
		}
		fields["a"] = analyticsID
		fields["title"] = params.Title
		fields["event"] = params.Event
	}

	if mode.Ad() {
		publisherID := orDefault(params.PublisherID, b.cfg.PublisherID)
		if *publisherID == "" {
			return nil, &ConfigurationError{Field: "publisher id", Mode: mode}
		}
		fields["s"] = publisherID
		fields["ma"] = params.Markup
		fields["f"] = orDefault(params.Format, defaultFormat)
		fields["d[pc]"] = params.PostalCode
		fields["d[ac]"] = params.AreaCode
		fields["d[coord]"] = params.Coordinates
		fields["d[dob]"] = params.DOB
		fields["d[gender]"] = params.Gender
		fields["k"] = params.Keywords
		fields["search"] = params.Search

		if params.TextOnly {
			fields["y"] = str("text")
		}
		if enc := orDefault(params.Encoding, b.cfg.Encoding); *enc != "" {
			fields["e"] = enc
		}
	}

	return compact(fields), nil
}

// compact drops every absent field.
func compact(fields map[string]*string) Payload {
	out := make(Payload, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func sessionDigest(key *string) *string {
	if key == nil {
		return nil
	}
	return str(identity.Digest(*key))
}

func orDefault(v *string, def string) *string {
	if v != nil {
		return v
	}
	return &def
}

func str(s string) *string {
	return &s
}
