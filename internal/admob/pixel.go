package admob

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickwarner/admob-go/internal/payload"
)

// pixelKeys are echoed from the payload into the analytics pixel, in order.
var pixelKeys = []string{"rt", "z", "a", "s", "o"}

// Pixel renders the 1x1 analytics image appended to the first AdMob
// response of a request. latency is how long the exchange took and timeout
// the bound it ran under.
func Pixel(pixelURL string, p payload.Payload, latency, timeout time.Duration) string {
	parts := make([]string, 0, len(pixelKeys)+2)
	for _, k := range pixelKeys {
		parts = append(parts, k+"="+url.QueryEscape(p[k]))
	}
	parts = append(parts,
		fmt.Sprintf("lt=%0.4f", latency.Seconds()),
		"to="+strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64),
	)
	return `<img src="` + html.EscapeString(pixelURL) + "?" + strings.Join(parts, "&amp;") + `" alt="" width="1" height="1"/>`
}
