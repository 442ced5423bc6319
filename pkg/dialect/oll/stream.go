package oll

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

// Reader deframes an upstream OLL NDJSON body into neutral stream chunks.
// No SSE precedent in the pack fits NDJSON framing; this is a thin
// bufio.Scanner-per-line codec, laid out the same way as the OAI SSE
// reader for symmetry.
type Reader struct {
	scanner *bufio.Scanner
	err     error
}

// NewReader wraps an NDJSON body reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next decoded chunk, or io.EOF once a frame with
// done=true has been returned.
func (r *Reader) Next() (ir.StreamChunk, error) {
	if r.err != nil {
		return ir.StreamChunk{}, r.err
	}

	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return ir.StreamChunk{}, fmt.Errorf("decode oll stream frame: %w", err)
		}
		decoded := decodeStreamChunk(chunk)
		if chunk.Done {
			r.err = io.EOF
		}
		return decoded, nil
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
		return ir.StreamChunk{}, err
	}
	r.err = io.EOF
	return ir.StreamChunk{}, io.EOF
}

func decodeStreamChunk(chunk StreamChunk) ir.StreamChunk {
	if len(chunk.ToolCalls) > 0 {
		tc := chunk.ToolCalls[0]
		return ir.StreamChunk{
			Type:     ir.ChunkTypeToolCall,
			ToolCall: &ir.ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		}
	}
	if chunk.Done {
		usage := ir.Usage{
			InputTokens:  chunk.PromptEvalCount,
			OutputTokens: chunk.EvalCount,
			TotalTokens:  chunk.PromptEvalCount + chunk.EvalCount,
		}
		return ir.StreamChunk{
			Type:         ir.ChunkTypeFinish,
			FinishReason: decodeFinishReason(chunk.DoneReason),
			Usage:        &usage,
		}
	}

	// OLL streams text as message.content in /api/chat, falling back to
	// the bare `response` field some deployments use (spec §4.5).
	if chunk.Message != nil && chunk.Message.Content != "" {
		return ir.StreamChunk{Type: ir.ChunkTypeText, Text: chunk.Message.Content}
	}
	return ir.StreamChunk{Type: ir.ChunkTypeText, Text: chunk.Response}
}

// Writer frames outbound neutral stream chunks as OLL NDJSON.
type Writer struct {
	w     io.Writer
	model string
}

// NewWriter creates a Writer that stamps every frame with model.
func NewWriter(w io.Writer, model string) *Writer {
	return &Writer{w: w, model: model}
}

// WriteText emits a single text-delta frame.
func (w *Writer) WriteText(text string) error {
	chunk := StreamChunk{
		Model:   w.model,
		Message: &wireMessage{Role: "assistant", Content: text},
		Done:    false,
	}
	return w.writeLine(chunk)
}

// WriteToolCall emits the single-frame OLL tool-call synthesis (spec
// §4.5): tool_calls set, response empty, done still false. The caller
// waits for the upstream done:true frame before terminating.
func (w *Writer) WriteToolCall(call ir.ExtractedToolCall) error {
	chunk := StreamChunk{
		Model:     w.model,
		ToolCalls: []wireToolCall{{Function: wireToolFunction{Name: call.Name, Arguments: call.Arguments}}},
		Response:  "",
		Done:      false,
	}
	return w.writeLine(chunk)
}

// WriteDone emits the OLL terminator frame.
func (w *Writer) WriteDone(reason ir.FinishReason, usage ir.Usage) error {
	chunk := StreamChunk{
		Model:      w.model,
		Done:       true,
		DoneReason: encodeFinishReason(reason),
		wireUsage: wireUsage{
			PromptEvalCount: usage.InputTokens,
			EvalCount:       usage.OutputTokens,
		},
	}
	return w.writeLine(chunk)
}

// WriteError emits the OLL streaming terminal error frame (spec §7).
func (w *Writer) WriteError(message string) error {
	return w.writeLine(ErrorFrame{Error: message, Done: true})
}

func (w *Writer) writeLine(v interface{}) error {
	b := marshal(v)
	_, err := fmt.Fprintf(w.w, "%s\n", b)
	return err
}
