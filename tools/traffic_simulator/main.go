package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/observability"
)

var (
	server   string
	users    int
	totalReq int
	conc     int
	duration time.Duration
	rate     float64
	stats    bool
	debug    bool
	label    string
	keywords string
)

var (
	userAgents = []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
	}
	userIPs = []string{
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
	}
)

const statsInterval = 5 * time.Second

// user is one simulated browser. Its requests are serialised so the cookie
// jar sees every response before the next request goes out.
type user struct {
	mu  sync.Mutex
	jar http.CookieJar
	ua  string
	ip  string
}

type counters struct {
	sent       uint64
	ads        uint64
	errors     uint64
	cookiesSet uint64
	// a cookie set on a request that already carried one
	overwrites uint64
}

type simulator struct {
	base      *url.URL
	transport http.RoundTripper
	users     []*user
	logger    *zap.Logger
	counts    counters
}

func newSimulator(base string, n int, transport http.RoundTripper, r *rand.Rand, logger *zap.Logger) (*simulator, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	s := &simulator{base: u, transport: transport, logger: logger}
	for i := 0; i < n; i++ {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		s.users = append(s.users, &user{
			jar: jar,
			ua:  userAgents[r.Intn(len(userAgents))],
			ip:  userIPs[r.Intn(len(userIPs))],
		})
	}
	return s, nil
}

// visit loads the demo page once as u.
func (s *simulator) visit(ctx context.Context, u *user, query string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	atomic.AddUint64(&s.counts.sent, 1)

	target := *s.base
	target.RawQuery = query
	hadCookie := false
	for _, c := range u.jar.Cookies(&target) {
		if c.Name == identity.CookieName {
			hadCookie = true
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		atomic.AddUint64(&s.counts.errors, 1)
		s.logger.Error("request build error", zap.Error(err))
		return
	}
	req.Header.Set("User-Agent", u.ua)
	req.Header.Set("X-Forwarded-For", u.ip)

	client := &http.Client{Transport: s.transport, Jar: u.jar, Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&s.counts.errors, 1)
		s.logger.Error("page request error", zap.Error(err))
		return
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		atomic.AddUint64(&s.counts.errors, 1)
		s.logger.Error("read body error", zap.Error(err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&s.counts.errors, 1)
		s.logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(body))))
		return
	}

	for _, c := range resp.Cookies() {
		if c.Name != identity.CookieName {
			continue
		}
		atomic.AddUint64(&s.counts.cookiesSet, 1)
		if hadCookie {
			atomic.AddUint64(&s.counts.overwrites, 1)
			s.logger.Warn("identity cookie overwritten", zap.String("value", c.Value))
		}
	}
	if strings.Contains(string(body), "<a href") {
		atomic.AddUint64(&s.counts.ads, 1)
	}
}

func (s *simulator) logStats() {
	s.logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", atomic.LoadUint64(&s.counts.sent)),
		zap.Uint64("ads", atomic.LoadUint64(&s.counts.ads)),
		zap.Uint64("errors", atomic.LoadUint64(&s.counts.errors)),
		zap.Uint64("cookies_set", atomic.LoadUint64(&s.counts.cookiesSet)),
		zap.Uint64("overwrites", atomic.LoadUint64(&s.counts.overwrites)),
		zap.Int("users", len(s.users)))
}

func validateFlags() error {
	if conc < 1 {
		return fmt.Errorf("-concurrency must be at least 1, got %d", conc)
	}
	if users < 1 {
		return fmt.Errorf("-users must be at least 1, got %d", users)
	}
	if rate < 0 {
		return fmt.Errorf("-rate must not be negative, got %g", rate)
	}
	return nil
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "demo host base URL")
	flag.IntVar(&users, "users", 100, "number of unique visitors")
	flag.IntVar(&totalReq, "requests", 1000, "total page loads")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.StringVar(&keywords, "keywords", "", "keywords passed to every ad request")
	flag.Parse()

	if err := validateFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	logger, err := observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   conc,
		IdleConnTimeout:       90 * time.Second,
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	sim, err := newSimulator(server, users, transport, r, logger)
	if err != nil {
		logger.Fatal("init simulator", zap.Error(err))
	}

	query := ""
	if keywords != "" {
		query = url.Values{"k": {keywords}}.Encode()
	}

	var g errgroup.Group
	g.SetLimit(conc)
	done := make(chan struct{})

	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		interval = duration / time.Duration(totalReq)
	}

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					sim.logStats()
				case <-done:
					return
				}
			}
		}()
	}

	start := time.Now()
	next := start
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if interval > 0 {
			if now := time.Now(); now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(interval)
		}
		u := sim.users[r.Intn(len(sim.users))]
		g.Go(func() error {
			sim.visit(context.Background(), u, query)
			return nil
		})
	}
	_ = g.Wait()
	close(done)
	sim.logStats()
}
