// Package progress provides the per-invocation cancellation and progress
// primitives handed to tool implementations. CancellationToken follows the
// atomic.Bool pattern the teacher uses for its own streaming-state flags
// (internal/gateway/processing.go's streamingEnabled).
package progress

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// CancellationToken is a one-way cancellation flag: once cancelled, it
// never un-cancels. Tool implementations poll IsCancelled at natural
// boundaries (at least once per streamed chunk) and must return promptly
// once it is set.
type CancellationToken struct {
	cancelled atomic.Bool
	done      chan struct{}
}

// NewCancellationToken creates a fresh, uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel sets the token. Calling it more than once is a no-op.
func (t *CancellationToken) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		close(t.done)
	}
}

// IsCancelled reports whether Cancel has been called.
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel closed the moment Cancel is called, for use in a
// select alongside a context or a chunk source.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}

// WithContext returns a context.Context that is cancelled when either ctx
// or the token is, so tool impls can use a single context in blocking
// calls (HTTP requests, DB queries) without special-casing the token.
func (t *CancellationToken) WithContext(ctx context.Context) (context.Context, context.CancelFunc) {
	derived, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-t.Done():
			cancel()
		case <-derived.Done():
		}
	}()
	return derived, cancel
}

// ReportFunc receives a progress update for a single tool invocation.
type ReportFunc func(fraction float64, message string)

// Reporter reports fractional progress for a tool invocation. If no
// callback is wired, reports are logged at debug level instead of lost.
type Reporter struct {
	report ReportFunc
	logger *slog.Logger
}

// NewReporter creates a Reporter. report may be nil, in which case updates
// are logged at debug level via logger (or slog.Default() if logger is nil).
func NewReporter(report ReportFunc, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{report: report, logger: logger}
}

// Report emits a progress update. fraction must be in [0.0, 1.0]; values
// outside that range fail with ConfigInvalid.
func (r *Reporter) Report(fraction float64, message string) error {
	if fraction < 0.0 || fraction > 1.0 {
		return corekind.New(corekind.ConfigInvalid, "progress fraction %v out of range [0,1]", fraction)
	}
	if r.report != nil {
		r.report(fraction, message)
		return nil
	}
	r.logger.Debug("progress", "fraction", fraction, "message", message)
	return nil
}

type ctxKey int

const reporterCtxKey ctxKey = iota

// WithReporter returns a copy of ctx carrying reporter, so a tool impl that
// only receives a context.Context (the Impl/StreamImpl shape in
// toolregistry) can still retrieve the Reporter the facade created for it.
func WithReporter(ctx context.Context, reporter *Reporter) context.Context {
	return context.WithValue(ctx, reporterCtxKey, reporter)
}

// ReporterFromContext returns the Reporter embedded by WithReporter, or nil
// if the session did not negotiate the progress_tracking capability.
func ReporterFromContext(ctx context.Context) *Reporter {
	r, _ := ctx.Value(reporterCtxKey).(*Reporter)
	return r
}
