// Package fakeadnet is an in-process stand-in for the AdMob ad_source
// endpoint. It records every form it receives and answers ad requests with
// placeholder markup.
package fakeadnet

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server implements http.Handler.
type Server struct {
	mu       sync.Mutex
	requests []url.Values
	delay    time.Duration
	status   int
	logger   *zap.Logger
}

// New returns a Server answering 200 with no delay.
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{status: http.StatusOK, logger: logger}
}

// SetDelay makes every reply wait d, or until the caller gives up.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetStatus makes every reply use code.
func (s *Server) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// Requests returns a copy of the forms received so far.
func (s *Server) Requests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]url.Values, len(s.requests))
	copy(out, s.requests)
	return out
}

// Last returns the most recent form, or nil.
func (s *Server) Last() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, r.PostForm)
	delay, status := s.delay, s.status
	s.mu.Unlock()

	s.logger.Info("ad source request",
		zap.String("rt", r.PostForm.Get("rt")),
		zap.String("s", r.PostForm.Get("s")),
		zap.String("a", r.PostForm.Get("a")),
		zap.Bool("test", r.PostForm.Get("m") == "test"))

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// analytics-only calls get an empty body
	if rt := r.PostForm.Get("rt"); rt == "0" || rt == "2" {
		_, _ = fmt.Fprintf(w, `<a href="http://example.com/click?s=%s">Test ad for %s</a>`,
			url.QueryEscape(r.PostForm.Get("s")), html.EscapeString(r.PostForm.Get("s")))
	}
}
