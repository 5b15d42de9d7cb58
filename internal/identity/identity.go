// Package identity derives the AdMob visitor identifier and owns the policy
// for reading and writing the admobuu cookie.
package identity

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// CookieName is the cookie AdMob expects the visitor identifier under.
const CookieName = "admobuu"

// digestBytes is the identifier width: 128 bits.
const digestBytes = 16

// Origin records whether an identifier came from the request or was minted.
type Origin int

const (
	OriginExisting Origin = iota
	OriginGenerated
)

func (o Origin) String() string {
	switch o {
	case OriginExisting:
		return "existing"
	case OriginGenerated:
		return "generated"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// Identifier is an opaque per-browser token.
type Identifier struct {
	Value  string
	Origin Origin
}

// Generated reports whether the identifier was minted during this request.
func (id Identifier) Generated() bool {
	return id.Origin == OriginGenerated
}

// Fingerprint is the request data mixed into a new identifier.
type Fingerprint struct {
	UserAgent string
	ClientIP  string
}

// Generator mints identifiers. The zero value uses the wall clock and a
// random v4 UUID as entropy.
type Generator struct {
	Now     func() time.Time
	Entropy func() string
}

// Resolve returns the existing cookie value when present, otherwise a new
// identifier. Two calls with identical fingerprints never collide because
// of the entropy component.
func (g Generator) Resolve(existing string, present bool, fp Fingerprint) Identifier {
	if present {
		return Identifier{Value: existing, Origin: OriginExisting}
	}
	return Identifier{Value: g.generate(fp), Origin: OriginGenerated}
}

func (g Generator) generate(fp Fingerprint) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	entropy := uuid.NewString
	if g.Entropy != nil {
		entropy = g.Entropy
	}
	t := now()
	seed := fmt.Sprintf("%s%s%s%d.%06d", entropy(), fp.UserAgent, fp.ClientIP, t.Unix(), t.Nanosecond()/1000)
	return Digest(seed)
}

// Digest returns a 128-bit BLAKE3 digest of s in lowercase hex.
func Digest(s string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil)[:digestBytes])
}

// ShouldSetOnResponse is true only for a freshly minted identifier when
// neither side of the exchange already carries the cookie.
func ShouldSetOnResponse(id Identifier, requestHasCookie, responseHasCookie bool) bool {
	return id.Origin == OriginGenerated && !requestHasCookie && !responseHasCookie
}

// CookieExpiry is the end of 32-bit Unix time.
func CookieExpiry() time.Time {
	return time.Unix(0x7fffffff, 0).UTC()
}

// NewCookie builds the admobuu cookie for value.
func NewCookie(value, path, domain string) *http.Cookie {
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:    CookieName,
		Value:   value,
		Path:    path,
		Domain:  domain,
		Expires: CookieExpiry(),
	}
}

// FromRequest returns the identifier cookie carried by r, if any.
func FromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// HasCookie reports whether h already holds a Set-Cookie for admobuu.
func HasCookie(h http.Header) bool {
	prefix := CookieName + "="
	for _, line := range h.Values("Set-Cookie") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			return true
		}
	}
	return false
}
