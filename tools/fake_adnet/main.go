package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/fakeadnet"
	"github.com/patrickwarner/admob-go/internal/observability"
)

var (
	addr   string
	delay  time.Duration
	status int
)

func main() {
	flag.StringVar(&addr, "addr", ":8788", "listen address")
	flag.DurationVar(&delay, "delay", 0, "delay every reply by this long")
	flag.IntVar(&status, "status", http.StatusOK, "status code for every reply")
	flag.Parse()

	logger, err := observability.InitLoggerWithService("fake-adnet")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	fake := fakeadnet.New(logger)
	fake.SetDelay(delay)
	fake.SetStatus(status)

	mux := http.NewServeMux()
	mux.Handle("/ad_source.php", fake)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Fake ad network running",
		zap.String("addr", addr),
		zap.String("endpoint", "http://localhost"+addr+"/ad_source.php"),
		zap.Duration("delay", delay),
		zap.Int("status", status))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("listen", zap.Error(err))
	}
	logger.Info("Fake ad network stopped", zap.Int("requests", len(fake.Requests())))
}
