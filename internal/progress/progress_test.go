package progress

import (
	"context"
	"testing"
	"time"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

func TestCancellationTokenNeverUncancels(t *testing.T) {
	tok := NewCancellationToken()
	if tok.IsCancelled() {
		t.Fatal("expected fresh token to be uncancelled")
	}
	tok.Cancel()
	tok.Cancel() // idempotent, must not panic on double-close
	if !tok.IsCancelled() {
		t.Fatal("expected token to remain cancelled")
	}
}

func TestCancellationTokenDoneChannelClosesOnce(t *testing.T) {
	tok := NewCancellationToken()
	tok.Cancel()
	select {
	case <-tok.Done():
	default:
		t.Fatal("expected Done channel closed after Cancel")
	}
}

func TestWithContextCancelsOnToken(t *testing.T) {
	tok := NewCancellationToken()
	ctx, cancel := tok.WithContext(context.Background())
	defer cancel()

	tok.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected derived context to be cancelled")
	}
}

func TestReporterRejectsOutOfRangeFraction(t *testing.T) {
	r := NewReporter(nil, nil)
	if err := r.Report(1.5, "too big"); !corekind.Is(err, corekind.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
	if err := r.Report(-0.1, "too small"); !corekind.Is(err, corekind.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestReporterInvokesCallback(t *testing.T) {
	var gotFraction float64
	var gotMsg string
	r := NewReporter(func(fraction float64, message string) {
		gotFraction = fraction
		gotMsg = message
	}, nil)

	if err := r.Report(0.5, "halfway"); err != nil {
		t.Fatal(err)
	}
	if gotFraction != 0.5 || gotMsg != "halfway" {
		t.Fatalf("callback did not receive expected values: %v %q", gotFraction, gotMsg)
	}
}

func TestReporterFallsBackToLoggingWithoutCallback(t *testing.T) {
	r := NewReporter(nil, nil)
	if err := r.Report(0.25, "no callback wired"); err != nil {
		t.Fatal(err)
	}
}

func TestReporterFromContextRoundTrips(t *testing.T) {
	r := NewReporter(nil, nil)
	ctx := WithReporter(context.Background(), r)
	if got := ReporterFromContext(ctx); got != r {
		t.Fatalf("expected the same Reporter back, got %v", got)
	}
}

func TestReporterFromContextNilWhenUnset(t *testing.T) {
	if got := ReporterFromContext(context.Background()); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
