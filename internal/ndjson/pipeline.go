// Package ndjson implements the streaming response pipeline: draining a
// tool's chunk channel into newline-delimited JSON-RPC response lines,
// cooperative with a cancellation token. The one-chunk-ahead discipline
// mirrors the teacher's StreamManager (internal/gateway/stream_manager.go):
// the next chunk is read from the source only after the previous line has
// been written and flushed, so nothing is buffered ahead of the consumer.
package ndjson

import (
	"bufio"
	"encoding/json"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
	"github.com/jcjorel/docwatch-mcp/internal/jsonrpc"
	"github.com/jcjorel/docwatch-mcp/internal/progress"
)

// ContentType is the MIME type for an NDJSON streaming response body.
const ContentType = "application/x-ndjson"

// Writer is the minimal interface the pipeline needs from an HTTP response
// (or any other sink): write bytes, and flush them downstream immediately
// so the consumer sees one chunk at a time rather than buffered output.
type Writer interface {
	Write(p []byte) (int, error)
	Flush()
}

// bufWriter adapts an io.Writer without a native Flush (e.g. in tests) into
// a Writer by flushing a bufio.Writer after every write.
type bufWriter struct {
	w *bufio.Writer
}

// NewBufWriter wraps w so every Write is immediately flushed.
func NewBufWriter(w interface {
	Write([]byte) (int, error)
}) Writer {
	return &bufWriter{w: bufio.NewWriter(w)}
}

func (b *bufWriter) Write(p []byte) (int, error) {
	n, err := b.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, b.w.Flush()
}

func (b *bufWriter) Flush() { _ = b.w.Flush() }

// Stream drains chunks from src, writing each as a complete JSON-RPC
// response line reusing id. It stops early, with no further lines, the
// moment tok fires. A send error from src (carried on the channel as an
// error value) ends the stream with a single terminal error line, after
// which Stream returns nil (or the write error, if that line could not be
// written). A failed write of a result line ends the stream with no further
// line and returns the write error. A clean exhaustion of src returns nil.
func Stream(w Writer, id any, src <-chan any, tok *progress.CancellationToken) error {
	for {
		select {
		case <-cancelDone(tok):
			return nil
		case chunk, ok := <-src:
			if !ok {
				return nil
			}
			if err, isErr := chunk.(error); isErr {
				return writeLine(w, jsonrpc.NewError(id, mapStreamErrorCode(err), err.Error(), nil))
			}
			if err := writeLine(w, jsonrpc.NewResult(id, chunk)); err != nil {
				return err
			}
		}
	}
}

func cancelDone(tok *progress.CancellationToken) <-chan struct{} {
	if tok == nil {
		return nil
	}
	return tok.Done()
}

func writeLine(w Writer, resp *jsonrpc.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func mapStreamErrorCode(err error) int {
	kind, ok := corekind.KindOf(err)
	if !ok {
		return jsonrpc.CodeInternalError
	}
	switch kind {
	case corekind.Cancelled:
		return jsonrpc.CodeCancelled
	case corekind.DeadlineExceeded:
		return jsonrpc.CodeDeadlineExceeded
	case corekind.ToolExecutionFailed:
		return jsonrpc.CodeToolExecutionFailed
	default:
		return jsonrpc.CodeInternalError
	}
}
