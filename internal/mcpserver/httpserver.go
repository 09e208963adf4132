// Package mcpserver is the HTTP carrier for the JSON-RPC surface: POST /rpc
// for unary calls, POST /rpc/stream for NDJSON streaming, plus /healthz and
// /metrics. The mux/http.Server shape and the promhttp.Handler() wiring
// follow the teacher's internal/gateway/http_server.go.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcjorel/docwatch-mcp/internal/invoker"
	"github.com/jcjorel/docwatch-mcp/internal/jsonrpc"
	"github.com/jcjorel/docwatch-mcp/internal/ndjson"
	"github.com/jcjorel/docwatch-mcp/internal/status"
)

// HealthFunc reports whether the process is ready to serve traffic.
type HealthFunc func() bool

// StatusFunc returns the current scheduler status snapshot. Nil means the
// process has no scheduler status to report (/status replies 404).
type StatusFunc func() status.Snapshot

// Config configures the HTTP carrier.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Invoker      *invoker.Invoker
	Registry     *prometheus.Registry
	Health       HealthFunc
	Status       StatusFunc
	Logger       *slog.Logger
}

// Server is the HTTP carrier around an Invoker.
type Server struct {
	cfg         Config
	logger      *slog.Logger
	httpSrv     *http.Server
	listener    net.Listener
	initialized bool
}

// New builds a Server. Call Start to begin serving.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Start binds the listener and begins serving in the background. It
// returns once the listener is bound; serve errors (other than a clean
// shutdown) are logged rather than returned, matching the teacher's
// fire-and-forget startHTTPServer.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleRPCStream)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	if s.cfg.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.httpSrv = srv
	s.listener = listener

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mcpserver: http server error", "error", err)
		}
	}()

	s.logger.Info("mcpserver: listening", "addr", s.cfg.ListenAddr)
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Name satisfies kernel.Component.
func (s *Server) Name() string { return "mcp_http_server" }

// Dependencies satisfies kernel.Component; the HTTP carrier needs the
// scheduler running first so /metrics has live gauges from first scrape.
func (s *Server) Dependencies() []string { return []string{"scheduler"} }

// Initialize satisfies kernel.Component.
func (s *Server) Initialize(map[string]any) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// Shutdown satisfies kernel.Component.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.initialized = false
	return s.Stop(ctx)
}

// IsInitialized satisfies kernel.Component.
func (s *Server) IsInitialized() bool { return s.initialized }

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, jsonrpc.NewError(nil, jsonrpc.CodeParseError, "reading body: "+err.Error(), nil))
		return
	}

	req, errResp := jsonrpc.Parse(raw)
	if errResp != nil {
		writeResponse(w, errResp)
		return
	}

	resp := s.cfg.Invoker.Execute(r.Context(), req, nil)
	writeResponse(w, resp)
}

func (s *Server) handleRPCStream(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, jsonrpc.NewError(nil, jsonrpc.CodeParseError, "reading body: "+err.Error(), nil))
		return
	}

	req, errResp := jsonrpc.Parse(raw)
	if errResp != nil {
		writeResponse(w, errResp)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeResponse(w, jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "streaming unsupported by this response writer", nil))
		return
	}
	w.Header().Set("Content-Type", ndjson.ContentType)
	w.WriteHeader(http.StatusOK)

	sink := flushWriter{w: w, flusher: flusher}
	resp := s.cfg.Invoker.Execute(r.Context(), req, sink)
	if resp != nil {
		// The tool chose a unary response even though /rpc/stream was hit;
		// still frame it as a single NDJSON line so the body stays valid.
		raw, _ := json.Marshal(resp)
		_, _ = sink.Write(append(raw, '\n'))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthy := true
	if s.cfg.Health != nil {
		healthy = s.cfg.Health()
	}
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	snap := s.cfg.Status()
	raw, err := json.Marshal(snap)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// flushWriter adapts an http.ResponseWriter into ndjson.Writer.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f flushWriter) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f flushWriter) Flush()                      { f.flusher.Flush() }

func writeResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	raw, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(raw)
}
