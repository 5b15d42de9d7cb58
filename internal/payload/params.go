package payload

import "time"

// Params are the caller-supplied options for one call. Nil pointers mean
// "not supplied" and fall back to configuration or are left out of the
// payload; a pointer to "" is sent as an explicitly blank field.
type Params struct {
	AdRequest        bool
	AnalyticsRequest bool

	PublisherID *string // s, defaults to config
	AnalyticsID *string // a, defaults to config
	Encoding    *string // e, defaults to config; omitted when empty
	Test        *bool   // m=test, defaults to config
	Page        *string // p, wins over the derived request URL

	Markup      *string // ma: xhtml, wml, chtml
	Format      *string // f: html, html_no_js; defaults to html
	PostalCode  *string // d[pc]
	AreaCode    *string // d[ac]
	Coordinates *string // d[coord], "lat,lng"
	DOB         *string // d[dob], YYYYMMDD
	Gender      *string // d[gender], m or f
	Keywords    *string // k, space separated
	Search      *string // search
	TextOnly    bool    // y=text

	Title *string // analytics page title
	Event *string // analytics event name

	// Timeout overrides the configured call timeout when positive.
	Timeout time.Duration
}

// Mode derives the request mode from the two flags.
func (p Params) Mode() Mode {
	return ModeFor(p.AdRequest, p.AnalyticsRequest)
}

// String returns a pointer to s, for filling optional Params fields.
func String(s string) *string {
	return &s
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
