package oai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

// doneMarker is the OAI streaming terminator (spec §6).
const doneMarker = "[DONE]"

// Reader deframes an upstream OAI SSE body into neutral stream chunks.
// Grounded on the teacher's SSEParser, trimmed to what C5 needs: a
// sequential Next() that returns io.EOF once the [DONE] frame is seen.
type Reader struct {
	scanner *bufio.Scanner
	err     error
}

// NewReader wraps an SSE body reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next decoded chunk, or io.EOF when the upstream
// terminator frame is reached.
func (r *Reader) Next() (ir.StreamChunk, error) {
	if r.err != nil {
		return ir.StreamChunk{}, r.err
	}

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimPrefix(line, "data:")
		data = strings.TrimPrefix(data, " ")

		if data == doneMarker {
			r.err = io.EOF
			return ir.StreamChunk{}, io.EOF
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return ir.StreamChunk{}, fmt.Errorf("decode oai stream frame: %w", err)
		}
		return decodeStreamChunk(chunk), nil
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
		return ir.StreamChunk{}, err
	}
	r.err = io.EOF
	return ir.StreamChunk{}, io.EOF
}

func decodeStreamChunk(chunk StreamChunk) ir.StreamChunk {
	if len(chunk.Choices) == 0 {
		return ir.StreamChunk{Type: ir.ChunkTypeText}
	}
	choice := chunk.Choices[0]

	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		return ir.StreamChunk{
			Type:     ir.ChunkTypeToolCall,
			ToolCall: &ir.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args},
		}
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		return ir.StreamChunk{Type: ir.ChunkTypeFinish, FinishReason: decodeFinishReason(*choice.FinishReason)}
	}
	text := ""
	if choice.Delta.Content != nil {
		text = *choice.Delta.Content
	}
	return ir.StreamChunk{Type: ir.ChunkTypeText, Text: text}
}

// Writer frames outbound neutral stream chunks as OAI SSE.
type Writer struct {
	w     io.Writer
	model string
	id    string
}

// NewWriter creates a Writer that stamps every frame with id/model.
func NewWriter(w io.Writer, id, model string) *Writer {
	return &Writer{w: w, model: model, id: id}
}

// WriteText emits a single text-delta frame.
func (w *Writer) WriteText(text string) error {
	content := text
	chunk := StreamChunk{
		ID: w.id, Object: "chat.completion.chunk", Model: w.model,
		Choices: []wireStreamChoice{{Delta: wireDelta{Content: &content}}},
	}
	return w.writeFrame(chunk)
}

// WriteToolCall emits the two-chunk OAI tool-call synthesis sequence
// (spec §4.5): a delta carrying the tool_calls array, then a finish-reason
// chunk. It does not emit [DONE]; the caller waits for the upstream
// terminator per spec rationale in §4.5.
func (w *Writer) WriteToolCall(id string, call ir.ExtractedToolCall) error {
	args, _ := json.Marshal(call.Arguments)
	zero := 0
	callChunk := StreamChunk{
		ID: w.id, Object: "chat.completion.chunk", Model: w.model,
		Choices: []wireStreamChoice{{
			Delta: wireDelta{
				Role: "assistant",
				ToolCalls: []wireToolCall{{
					Index: &zero,
					ID:    id,
					Type:  "function",
					Function: wireToolFunction{
						Name:      call.Name,
						Arguments: string(args),
					},
				}},
			},
		}},
	}
	if err := w.writeFrame(callChunk); err != nil {
		return err
	}

	finish := "tool_calls"
	finishChunk := StreamChunk{
		ID: w.id, Object: "chat.completion.chunk", Model: w.model,
		Choices: []wireStreamChoice{{Delta: wireDelta{}, FinishReason: &finish}},
	}
	return w.writeFrame(finishChunk)
}

// WriteFinish emits a plain finish-reason frame (upstream terminator
// passthrough case where no tool call was synthesized).
func (w *Writer) WriteFinish(reason ir.FinishReason) error {
	fr := encodeFinishReason(reason)
	chunk := StreamChunk{
		ID: w.id, Object: "chat.completion.chunk", Model: w.model,
		Choices: []wireStreamChoice{{Delta: wireDelta{}, FinishReason: &fr}},
	}
	return w.writeFrame(chunk)
}

// WriteDone emits the OAI terminator frame.
func (w *Writer) WriteDone() error {
	_, err := fmt.Fprintf(w.w, "data: %s\n\n", doneMarker)
	return err
}

// WriteError emits the OAI streaming terminal error frame (spec §7),
// followed by [DONE].
func (w *Writer) WriteError(message, code string) error {
	frame := StreamErrorFrame{}
	frame.Error.Message = message
	frame.Error.Code = code
	if err := w.writeFrame(frame); err != nil {
		return err
	}
	return w.WriteDone()
}

func (w *Writer) writeFrame(v interface{}) error {
	b := marshal(v)
	_, err := fmt.Fprintf(w.w, "data: %s\n\n", b)
	return err
}
