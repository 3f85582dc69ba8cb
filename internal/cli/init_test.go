package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	applog "bilancio/internal/log"
)

func TestGracefulShutdown_Stop(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Format: "text", Output: &buf})

	cleaned := make(chan struct{})
	ctx, stop, done := GracefulShutdown(logger, time.Second, func(context.Context) {
		close(cleaned)
	})

	select {
	case <-done:
		t.Fatal("done closed before shutdown was requested")
	case <-time.After(20 * time.Millisecond):
	}

	stop()

	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run after stop")
	}
	WaitForShutdown(ctx, done)

	if ctx.Err() == nil {
		t.Error("context not cancelled")
	}
	if !strings.Contains(buf.String(), "Shutdown requested") {
		t.Errorf("missing shutdown log: %s", buf.String())
	}
}

func TestGracefulShutdown_NilCleanup(t *testing.T) {
	logger := applog.New(applog.Config{Format: "text", Output: &bytes.Buffer{}})
	ctx, stop, done := GracefulShutdown(logger, time.Second, nil)
	stop()

	finished := make(chan struct{})
	go func() {
		WaitForShutdown(ctx, done)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("WaitForShutdown blocked after stop")
	}
}
