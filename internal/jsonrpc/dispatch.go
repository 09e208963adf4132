package jsonrpc

import (
	"encoding/json"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// Handler processes a validated Request and returns a result value to be
// marshaled into Response.Result, or an error.
type Handler func(req *Request) (any, error)

// Parse decodes raw bytes into a Request and runs §4.G validation:
//  1. must decode as a JSON object
//  2. jsonrpc == "2.0"
//  3. method is a non-empty string
//  4. params, if present, is an object
//
// On any failure it returns a nil *Request and a *Response ready to send
// (id is null unless an id field could be read before the failing check);
// callers should send the Response and stop.
func Parse(raw []byte) (*Request, *Response) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, NewError(nil, CodeParseError, "invalid JSON: "+err.Error(), nil)
	}

	var id any
	if rawID, ok := probe["id"]; ok {
		_ = json.Unmarshal(rawID, &id)
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, NewError(id, CodeInvalidRequest, "malformed request: "+err.Error(), nil)
	}
	req.ID = id

	if req.JSONRPC != "2.0" {
		return nil, NewError(id, CodeInvalidRequest, `"jsonrpc" must be "2.0"`, nil)
	}
	if req.Method == "" {
		return nil, NewError(id, CodeInvalidRequest, "\"method\" must be a non-empty string", nil)
	}
	if len(req.Params) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(req.Params, &obj); err != nil {
			return nil, NewError(id, CodeInvalidParams, "\"params\" must be an object", nil)
		}
	}

	return &req, nil
}

// Dispatch runs handler and wraps its outcome into a Response, mapping
// corekind.Kind values to the wire-stable codes from §6.
func Dispatch(req *Request, handler Handler) *Response {
	result, err := handler(req)
	if err == nil {
		return NewResult(req.ID, result)
	}
	code, msg := mapError(err)
	return NewError(req.ID, code, msg, nil)
}

// mapError maps a corekind.Error (or any error) to a wire code/message pair.
func mapError(err error) (int, string) {
	kind, _ := corekind.KindOf(err)
	switch kind {
	case corekind.ProtocolParseError:
		return CodeParseError, err.Error()
	case corekind.ProtocolInvalidRequest:
		return CodeInvalidRequest, err.Error()
	case corekind.ProtocolMethodNotFound, corekind.ToolNotFound:
		return CodeMethodNotFound, err.Error()
	case corekind.ToolInvalidInput, corekind.ProtocolInvalidParams:
		return CodeInvalidParams, err.Error()
	case corekind.ToolExecutionFailed:
		return CodeToolExecutionFailed, err.Error()
	case corekind.ResourceNotFound:
		return CodeResourceNotFound, err.Error()
	case corekind.Unauthorized:
		return CodeUnauthorized, err.Error()
	case corekind.DeadlineExceeded:
		return CodeDeadlineExceeded, err.Error()
	case corekind.Cancelled:
		return CodeCancelled, err.Error()
	default:
		return CodeInternalError, err.Error()
	}
}
