package payload

import "fmt"

// Mode describes what a single AdMob call asks for.
type Mode int

const (
	ModeNone Mode = iota
	ModeAdOnly
	ModeAnalyticsOnly
	ModeAdAndAnalytics
)

// ModeFor derives the mode from the two independent request flags. It is
// total over the boolean pair.
func ModeFor(ad, analytics bool) Mode {
	switch {
	case ad && analytics:
		return ModeAdAndAnalytics
	case ad:
		return ModeAdOnly
	case analytics:
		return ModeAnalyticsOnly
	default:
		return ModeNone
	}
}

// Ad reports whether the mode includes an ad request.
func (m Mode) Ad() bool {
	return m == ModeAdOnly || m == ModeAdAndAnalytics
}

// Analytics reports whether the mode includes an analytics request.
func (m Mode) Analytics() bool {
	return m == ModeAnalyticsOnly || m == ModeAdAndAnalytics
}

// Code returns the rt wire value. ModeNone has no code and yields nil.
func (m Mode) Code() *string {
	var code string
	switch m {
	case ModeNone:
		return nil
	case ModeAdOnly:
		code = "0"
	case ModeAnalyticsOnly:
		code = "1"
	case ModeAdAndAnalytics:
		code = "2"
	default:
		panic(fmt.Sprintf("payload: invalid mode %d", int(m)))
	}
	return &code
}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeAdOnly:
		return "ad"
	case ModeAnalyticsOnly:
		return "analytics"
	case ModeAdAndAnalytics:
		return "ad_analytics"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}
