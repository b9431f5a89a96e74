// Command mock-backend runs a deterministic OpenAI-compatible server for
// local development and tests. Answers are derived from the question in
// the prompt, so the same request always streams the same fragments.
//
// Configuration:
//
//	MOCK_PORT        - Listen port (default: 9090)
//	MOCK_STREAM_MODE - "sse", "ndjson" or "split" (default: "sse")
//	MOCK_DELAY       - Pause between streamed chunks, e.g. "50ms" (default: none)
//
// A request can pick its own stream mode with the X-Mock-Stream-Mode
// header. See pkg/provider/mockbackend for the failure triggers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/askdocs/pkg/provider/mockbackend"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	opts := mockbackend.Options{Mode: mockbackend.ModeSSE}
	if m := os.Getenv("MOCK_STREAM_MODE"); m != "" {
		mode, err := mockbackend.ParseMode(m)
		if err != nil {
			slog.Error("invalid MOCK_STREAM_MODE", "error", err)
			os.Exit(1)
		}
		opts.Mode = mode
	}
	if d := os.Getenv("MOCK_DELAY"); d != "" {
		delay, err := time.ParseDuration(d)
		if err != nil {
			slog.Error("invalid MOCK_DELAY", "error", err)
			os.Exit(1)
		}
		opts.Delay = delay
	}

	srv := &http.Server{Addr: ":" + port, Handler: mockbackend.New(opts)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "stream_mode", opts.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
