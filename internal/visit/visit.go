// Package visit holds the state scoped to one inbound request: the request
// facts captured at the start, the visitor identifier once resolved and the
// progress of the identity cookie.
package visit

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
)

// CookieState tracks the identity cookie through one request.
// NoCall -> Called -> (CookieWritten | CookieSkipped); there is no way back.
type CookieState int

const (
	NoCall CookieState = iota
	Called
	CookieWritten
	CookieSkipped
)

func (s CookieState) String() string {
	switch s {
	case NoCall:
		return "no_call"
	case Called:
		return "called"
	case CookieWritten:
		return "written"
	case CookieSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("CookieState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s CookieState) Terminal() bool {
	return s == CookieWritten || s == CookieSkipped
}

// Visit is the request-scoped context. Handlers may fan out goroutines
// within one request, so access is serialised.
type Visit struct {
	mu        sync.Mutex
	info      RequestInfo
	id        *identity.Identifier
	state     CookieState
	pixelSent bool
}

// New captures r and returns a Visit in the NoCall state.
func New(r *http.Request, cfg config.Config) *Visit {
	return &Visit{info: ExtractRequestInfo(r, cfg)}
}

// FromInfo returns a Visit over already extracted request facts.
func FromInfo(info RequestInfo) *Visit {
	return &Visit{info: info}
}

// Info returns the captured request facts.
func (v *Visit) Info() RequestInfo {
	return v.info
}

// Identify returns the visitor identifier, resolving it on first use. The
// second result is true only for the call that performed the resolution.
func (v *Visit) Identify(g identity.Generator) (identity.Identifier, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.id != nil {
		return *v.id, false
	}
	id := g.Resolve(v.info.Cookie, v.info.CookiePresent, v.info.Fingerprint())
	v.id = &id
	return id, true
}

// Identifier returns the resolved identifier, if any.
func (v *Visit) Identifier() (identity.Identifier, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.id == nil {
		return identity.Identifier{}, false
	}
	return *v.id, true
}

// MarkPending records that an AdMob call happened, so the response needs a
// cookie check. Only NoCall moves; later states are kept.
func (v *Visit) MarkPending() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == NoCall {
		v.state = Called
	}
}

// State returns the current cookie state.
func (v *Visit) State() CookieState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Settle moves a Called visit to its terminal state. write is invoked with
// the identifier under the lock and reports whether it wrote the cookie.
// Settle returns false when the visit was not in Called.
func (v *Visit) Settle(write func(id identity.Identifier, requestHasCookie bool) bool) (CookieState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Called || v.id == nil {
		return v.state, false
	}
	if write(*v.id, v.info.CookiePresent) {
		v.state = CookieWritten
	} else {
		v.state = CookieSkipped
	}
	return v.state, true
}

// ClaimPixel returns true exactly once per visit.
func (v *Visit) ClaimPixel() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pixelSent {
		return false
	}
	v.pixelSent = true
	return true
}

type visitKey struct{}

// NewContext returns a copy of ctx carrying v.
func NewContext(ctx context.Context, v *Visit) context.Context {
	return context.WithValue(ctx, visitKey{}, v)
}

// FromContext retrieves the visit installed by the cookie middleware.
func FromContext(ctx context.Context) (*Visit, bool) {
	v, ok := ctx.Value(visitKey{}).(*Visit)
	return v, ok && v != nil
}
