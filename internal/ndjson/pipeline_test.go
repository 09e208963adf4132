package ndjson

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
	"github.com/jcjorel/docwatch-mcp/internal/jsonrpc"
	"github.com/jcjorel/docwatch-mcp/internal/progress"
)

type buf struct {
	bytes.Buffer
	flushes int
}

func (b *buf) Flush() { b.flushes++ }

func TestStreamWritesOneLinePerChunk(t *testing.T) {
	src := make(chan any, 3)
	src <- map[string]any{"n": 1}
	src <- map[string]any{"n": 2}
	close(src)

	var out buf
	if err := Stream(&out, "req-1", src, nil); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}
	for _, line := range lines {
		var resp jsonrpc.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		if resp.ID != "req-1" {
			t.Fatalf("expected id req-1, got %v", resp.ID)
		}
	}
	if out.flushes != 2 {
		t.Fatalf("expected a flush per line, got %d", out.flushes)
	}
}

func TestStreamStopsOnCancellationWithNoFurtherLines(t *testing.T) {
	src := make(chan any)
	tok := progress.NewCancellationToken()
	tok.Cancel()

	var out buf
	if err := Stream(&out, "req-2", src, tok); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output after cancellation, got %q", out.String())
	}
}

func TestStreamEmitsTerminalErrorLineOnMidStreamFailure(t *testing.T) {
	src := make(chan any, 2)
	src <- map[string]any{"n": 1}
	src <- corekind.New(corekind.ToolExecutionFailed, "exploded")
	close(src)

	var out buf
	if err := Stream(&out, "req-3", src, nil); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines (one ok, one error), got %d", len(lines))
	}
	var last jsonrpc.Response
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatal(err)
	}
	if last.Error == nil || last.Error.Code != jsonrpc.CodeToolExecutionFailed {
		t.Fatalf("expected terminal ToolExecutionFailed error, got %+v", last.Error)
	}
}

func TestNewBufWriterFlushesEveryWrite(t *testing.T) {
	var sink bytes.Buffer
	w := NewBufWriter(&sink)
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	if sink.String() != "hello\n" {
		t.Fatalf("expected flushed content, got %q", sink.String())
	}
}
