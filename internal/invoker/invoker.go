// Package invoker implements the tool-invocation facade (§4.L): the single
// entry point gluing session resolution, tool/resource lookup, input
// validation, cancellation/progress wiring, and unary-vs-streaming dispatch.
// Execute routes on the request's method the way jsonrpc.Dispatch expects a
// caller to (§4.G "method dispatch table is supplied by the registry").
package invoker

import (
	"context"
	"encoding/json"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
	"github.com/jcjorel/docwatch-mcp/internal/jsonrpc"
	"github.com/jcjorel/docwatch-mcp/internal/mcpsession"
	"github.com/jcjorel/docwatch-mcp/internal/ndjson"
	"github.com/jcjorel/docwatch-mcp/internal/progress"
	"github.com/jcjorel/docwatch-mcp/internal/toolregistry"
)

// StreamingCapability is the session capability that must be present, in
// addition to the request asking for it, before a streaming body is used.
const StreamingCapability = "streaming"

// JSON-RPC methods the facade's dispatch table understands.
const (
	MethodExecuteTool           = "executeTool"
	MethodNegotiateCapabilities = "negotiateCapabilities"
	MethodReadResource          = "readResource"
)

// DefaultCapabilities is the server's advertised capability set when a
// Config leaves Capabilities unset.
var DefaultCapabilities = []string{"streaming", "cancellation", "progress_tracking", "notifications"}

// Params is the decoded params object of an executeTool request.
type Params struct {
	ToolName    string         `json:"toolName"`
	ToolInput   map[string]any `json:"toolInput"`
	Streaming   bool           `json:"streaming"`
	AuthContext map[string]any `json:"auth_context"`
	SessionID   string         `json:"session_id"`
}

// ResourceParams is the decoded params object of a readResource request.
type ResourceParams struct {
	ResourceName string         `json:"resourceName"`
	ID           string         `json:"id"`
	Params       map[string]any `json:"params"`
	AuthContext  map[string]any `json:"auth_context"`
	SessionID    string         `json:"session_id"`
}

// Config configures an Invoker.
type Config struct {
	Tools         *toolregistry.Registry
	Resources     *toolregistry.ResourceRegistry // optional; readResource 404s (ResourceNotFound) when nil
	Sessions      *mcpsession.Store
	ServerName    string
	ServerVersion string
	Capabilities  []string // server's supported capability set; defaults to DefaultCapabilities
}

// Invoker wires a Registry and Store together behind a single entry point.
type Invoker struct {
	Tools         *toolregistry.Registry
	Resources     *toolregistry.ResourceRegistry
	Sessions      *mcpsession.Store
	ServerName    string
	ServerVersion string
	Capabilities  []string
}

// New creates an Invoker from cfg.
func New(cfg Config) *Invoker {
	caps := cfg.Capabilities
	if caps == nil {
		caps = DefaultCapabilities
	}
	return &Invoker{
		Tools:         cfg.Tools,
		Resources:     cfg.Resources,
		Sessions:      cfg.Sessions,
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		Capabilities:  caps,
	}
}

// StreamSink is where Execute writes an NDJSON body when it decides the
// tool's output should stream instead of returning a single result.
type StreamSink = ndjson.Writer

// Execute is the method dispatch table the JSON-RPC core calls into: it
// routes req.Method to the matching handler and returns the encoded
// response. Unknown methods fail with ProtocolMethodNotFound. If the
// outcome is a streaming response, it is written directly to sink and the
// returned *jsonrpc.Response is nil (the caller already has set the NDJSON
// content type and must not write anything else).
func (inv *Invoker) Execute(ctx context.Context, req *jsonrpc.Request, sink StreamSink) *jsonrpc.Response {
	switch req.Method {
	case MethodExecuteTool:
		return inv.executeTool(ctx, req, sink)
	case MethodNegotiateCapabilities:
		return jsonrpc.Dispatch(req, inv.negotiateHandler)
	case MethodReadResource:
		return jsonrpc.Dispatch(req, func(r *jsonrpc.Request) (any, error) {
			return inv.readResourceHandler(ctx, r)
		})
	default:
		return jsonrpc.Dispatch(req, func(r *jsonrpc.Request) (any, error) {
			return nil, corekind.New(corekind.ProtocolMethodNotFound, "method %q is not supported", r.Method)
		})
	}
}

// executeTool runs the full §4.L flow for an executeTool request: resolve
// session, look up the tool, validate input, create capability-conditional
// tokens, then dispatch to the streaming or unary implementation.
func (inv *Invoker) executeTool(ctx context.Context, req *jsonrpc.Request, sink StreamSink) *jsonrpc.Response {
	var params Params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "invalid executeTool params: "+err.Error(), nil)
		}
	}

	sess := inv.Sessions.Resolve(params.SessionID)

	def, ok := inv.Tools.Get(params.ToolName)
	if !ok {
		return errResponse(req.ID, corekind.New(corekind.ToolNotFound, "tool %q is not registered", params.ToolName))
	}

	if err := inv.Tools.ValidateInput(params.ToolName, params.ToolInput); err != nil {
		return errResponse(req.ID, err)
	}

	var tok *progress.CancellationToken
	if sess.HasCapability("cancellation") {
		tok = progress.NewCancellationToken()
	}
	var reporter *progress.Reporter
	if sess.HasCapability("progress_tracking") {
		reporter = progress.NewReporter(nil, nil)
	}

	callCtx := ctx
	if tok != nil {
		var cancel context.CancelFunc
		callCtx, cancel = tok.WithContext(ctx)
		defer cancel()
	}
	if reporter != nil {
		callCtx = progress.WithReporter(callCtx, reporter)
	}

	wantsStream := params.Streaming && sess.HasCapability(StreamingCapability) && def.Stream != nil
	if wantsStream {
		if sink == nil {
			return errResponse(req.ID, corekind.New(corekind.InternalError, "streaming requested but no sink is available"))
		}
		src, err := def.Stream(callCtx, params.ToolInput)
		if err != nil {
			return errResponse(req.ID, corekind.Wrap(corekind.ToolExecutionFailed, err, "tool %q failed to start streaming", params.ToolName))
		}
		_ = ndjson.Stream(sink, req.ID, src, tok)
		return nil
	}

	result, err := inv.Tools.Execute(callCtx, params.ToolName, params.ToolInput)
	if err != nil {
		return errResponse(req.ID, err)
	}
	return jsonrpc.NewResult(req.ID, result)
}

// negotiateHandler implements MethodNegotiateCapabilities: it mints a
// session for the client's declared capabilities and reports the server's
// side of §4.I's negotiation payload, including the live tool and resource
// catalogs.
func (inv *Invoker) negotiateHandler(req *jsonrpc.Request) (any, error) {
	var params mcpsession.NegotiationRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, corekind.Wrap(corekind.ProtocolInvalidParams, err, "invalid %s params", MethodNegotiateCapabilities)
		}
	}

	var resourceNames []string
	if inv.Resources != nil {
		resourceNames = inv.Resources.List()
	}

	sess, resp, err := inv.Sessions.Negotiate(params, inv.ServerName, inv.ServerVersion, inv.Capabilities, inv.Tools.ListTools(""), resourceNames)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id":  sess.ID,
		"negotiation": resp,
	}, nil
}

// readResourceHandler implements MethodReadResource, the resource-facing
// counterpart of executeTool (§4.H: resources "expose a get(id?, params,
// auth?, session?) → object contract").
func (inv *Invoker) readResourceHandler(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params ResourceParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, corekind.Wrap(corekind.ProtocolInvalidParams, err, "invalid %s params", MethodReadResource)
		}
	}
	if inv.Resources == nil {
		return nil, corekind.New(corekind.ResourceNotFound, "resource %q is not registered", params.ResourceName)
	}

	sess := inv.Sessions.Resolve(params.SessionID)
	return inv.Resources.Get(ctx, params.ResourceName, params.ID, params.Params, params.AuthContext, sess.ID)
}

func errResponse(id any, err error) *jsonrpc.Response {
	kind, _ := corekind.KindOf(err)
	switch kind {
	case corekind.ToolNotFound:
		return jsonrpc.NewError(id, jsonrpc.CodeMethodNotFound, err.Error(), nil)
	case corekind.ToolInvalidInput, corekind.ToolInvalidOutput:
		return jsonrpc.NewError(id, jsonrpc.CodeInvalidParams, err.Error(), nil)
	case corekind.ToolExecutionFailed:
		return jsonrpc.NewError(id, jsonrpc.CodeToolExecutionFailed, err.Error(), nil)
	case corekind.Cancelled:
		return jsonrpc.NewError(id, jsonrpc.CodeCancelled, err.Error(), nil)
	case corekind.DeadlineExceeded:
		return jsonrpc.NewError(id, jsonrpc.CodeDeadlineExceeded, err.Error(), nil)
	default:
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, err.Error(), nil)
	}
}
