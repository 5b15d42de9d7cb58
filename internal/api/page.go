package api

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/middleware"
	"github.com/patrickwarner/admob-go/internal/payload"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<div class="ad">{{.Ad}}</div>
</body>
</html>
`))

type pageData struct {
	Title string
	Ad    template.HTML
}

// PageHandler renders a page with one ad slot. Query parameters k, search
// and text_only are passed through to the ad request; analytics=1 reports
// the page view in the same call.
//
// The page is rendered into a buffer so the ad call, and with it the
// identifier cookie, happens before any byte of the response is written.
func (s *Server) PageHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	q := r.URL.Query()

	params := payload.Params{AdRequest: true, Title: payload.String("Demo page")}
	if k := q.Get("k"); k != "" {
		params.Keywords = payload.String(k)
	}
	if search := q.Get("search"); search != "" {
		params.Search = payload.String(search)
	}
	params.TextOnly, _ = strconv.ParseBool(q.Get("text_only"))
	params.AnalyticsRequest, _ = strconv.ParseBool(q.Get("analytics"))

	ad, err := s.Client.Fetch(r.Context(), r, params, true)
	if err != nil {
		logger.Error("ad request", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		s.record("page", r.Method, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	// markup comes from the ad network and is embedded verbatim
	if err := pageTemplate.Execute(&buf, pageData{Title: "Demo page", Ad: template.HTML(ad)}); err != nil {
		logger.Error("render page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		s.record("page", r.Method, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	s.record("page", r.Method, http.StatusOK)
}

// AnalyticsPageHandler is served behind the analytics decorator and only
// writes the page body.
func (s *Server) AnalyticsPageHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{Title: "Analytics demo"}); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("render page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		s.record("analytics", r.Method, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
	s.record("analytics", r.Method, http.StatusOK)
}
