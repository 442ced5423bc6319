// Package streamproc implements the stream processor (C5, spec §4.5):
// deframe upstream bytes per source dialect, drive the detector (C2) on
// each text delta, and reframe to the target dialect, synthesizing a
// native tool-call frame when the detector completes.
package streamproc

import (
	"errors"
	"io"

	"github.com/relaybridge/toolbridge/pkg/detector"
	"github.com/relaybridge/toolbridge/pkg/dialect/oai"
	"github.com/relaybridge/toolbridge/pkg/dialect/oll"
	"github.com/relaybridge/toolbridge/pkg/ir"
)

// Dialect identifies a wire dialect for streaming framing.
type Dialect string

const (
	DialectOAI Dialect = "oai"
	DialectOLL Dialect = "oll"
)

// upstreamReader is the minimal interface both dialect readers satisfy.
type upstreamReader interface {
	Next() (ir.StreamChunk, error)
}

func newUpstreamReader(dialect Dialect, body io.Reader) upstreamReader {
	if dialect == DialectOAI {
		return oai.NewReader(body)
	}
	return oll.NewReader(body)
}

// downstreamWriter is implemented by both dialect writers, modulo the
// tool-call/finish signatures which differ enough between dialects (the
// OAI synthesis is a two-chunk sequence with a generated call ID; the OLL
// synthesis is a single frame and no ID) that Processor calls them
// directly rather than through a shared interface.
type oaiWriter interface {
	WriteText(text string) error
	WriteToolCall(id string, call ir.ExtractedToolCall) error
	WriteFinish(reason ir.FinishReason) error
	WriteDone() error
	WriteError(message, code string) error
}

type ollWriter interface {
	WriteText(text string) error
	WriteToolCall(call ir.ExtractedToolCall) error
	WriteDone(reason ir.FinishReason, usage ir.Usage) error
	WriteError(message string) error
}

// IDGenerator mints tool-call IDs for dialects that require one (OAI).
// Swappable so tests can assert on deterministic IDs.
type IDGenerator func() string

// Processor drives one stream end to end. Construct one per request; it
// is not safe for concurrent use (spec §5: single sequential consumer per
// stream).
type Processor struct {
	upstream upstreamReader
	detector *detector.Detector
	genID    IDGenerator

	oaiOut oaiWriter
	ollOut ollWriter
	target Dialect
}

// NewProcessor builds a Processor reading sourceDialect frames from body
// and writing targetDialect frames through out, using the detector's
// zero-config default window/buffer limits.
func NewProcessor(sourceDialect Dialect, body io.Reader, targetDialect Dialect, out io.Writer, model, streamID string, known ir.KnownToolSet, genID IDGenerator) *Processor {
	return NewProcessorWithLimits(sourceDialect, body, targetDialect, out, model, streamID, known, genID, 0, 0)
}

// NewProcessorWithLimits is NewProcessor with operator-configured detector
// window/buffer sizes (config.Config.WrapperWindowSize /
// MaxToolCallBufferSize). windowSize/maxBufferSize <= 0 fall back to the
// detector's own defaults.
func NewProcessorWithLimits(sourceDialect Dialect, body io.Reader, targetDialect Dialect, out io.Writer, model, streamID string, known ir.KnownToolSet, genID IDGenerator, windowSize, maxBufferSize int) *Processor {
	p := &Processor{
		upstream: newUpstreamReader(sourceDialect, body),
		detector: detector.NewWithLimits(known, windowSize, maxBufferSize),
		genID:    genID,
		target:   targetDialect,
	}
	if targetDialect == DialectOAI {
		p.oaiOut = oai.NewWriter(out, streamID, model)
	} else {
		p.ollOut = oll.NewWriter(out, model)
	}
	return p
}

// Run drains the upstream body, converting and forwarding every frame,
// until the upstream terminator is reached, an upstream error occurs, or
// ctx-equivalent cancellation is observed by the caller closing body.
// Returns nil on a clean upstream-terminated finish.
func (p *Processor) Run() error {
	var finalUsage ir.Usage
	var finishReason ir.FinishReason = ir.FinishReasonStop
	toolCallEmitted := false

	for {
		chunk, err := p.upstream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return p.finalize(toolCallEmitted, finishReason, finalUsage)
			}
			return err
		}

		switch chunk.Type {
		case ir.ChunkTypeText:
			if err := p.feedText(chunk.Text, &toolCallEmitted); err != nil {
				return err
			}
		case ir.ChunkTypeToolCall:
			// Native tool-call frame from upstream: per spec §9 Open
			// Question 2 this always wins over an envelope-derived one.
			// Forward it untouched in the target dialect; any tool call
			// the detector produces afterwards is discarded by emit.
			if err := p.forwardNativeToolCall(chunk, &toolCallEmitted); err != nil {
				return err
			}
		case ir.ChunkTypeFinish:
			finishReason = chunk.FinishReason
			if chunk.Usage != nil {
				finalUsage = *chunk.Usage
			}
			// The upstream terminator itself is handled by the next
			// Next() call returning io.EOF for OAI (the synthetic [DONE]
			// frame) or by chunk.Type carrying done for OLL; either way
			// we don't emit our own terminator until that EOF arrives,
			// per spec §4.5's wait-for-upstream-terminator rule.
		}
	}
}

func (p *Processor) feedText(text string, toolCallEmitted *bool) error {
	for _, ev := range p.detector.Feed(text) {
		if err := p.emit(ev, toolCallEmitted); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) emit(ev detector.Event, toolCallEmitted *bool) error {
	switch ev.Kind {
	case detector.EventText:
		if ev.Text == "" {
			return nil
		}
		if p.target == DialectOAI {
			return p.oaiOut.WriteText(ev.Text)
		}
		return p.ollOut.WriteText(ev.Text)
	case detector.EventToolCall:
		if *toolCallEmitted {
			return nil
		}
		*toolCallEmitted = true
		if p.target == DialectOAI {
			return p.oaiOut.WriteToolCall(p.genID(), ev.ToolCall)
		}
		return p.ollOut.WriteToolCall(ev.ToolCall)
	}
	return nil
}

func (p *Processor) forwardNativeToolCall(chunk ir.StreamChunk, toolCallEmitted *bool) error {
	*toolCallEmitted = true
	extracted := ir.ExtractedToolCall{Name: chunk.ToolCall.Name, Arguments: chunk.ToolCall.Arguments}
	if p.target == DialectOAI {
		id := chunk.ToolCall.ID
		if id == "" {
			id = p.genID()
		}
		return p.oaiOut.WriteToolCall(id, extracted)
	}
	return p.ollOut.WriteToolCall(extracted)
}

// finalize applies the stream-end policy (spec §4.2, §4.5): one last
// detector parse attempt, then the dialect terminator. For OAI, a stream
// that ends without a synthesized tool call still owes the client a
// finish-reason frame (WriteFinish) before [DONE]; WriteToolCall already
// emits its own finish-reason frame, so WriteFinish only fires when no
// tool call was emitted at all.
func (p *Processor) finalize(toolCallAlreadyEmitted bool, finishReason ir.FinishReason, usage ir.Usage) error {
	emittedBefore := toolCallAlreadyEmitted
	for _, ev := range p.detector.Finalize() {
		if err := p.emit(ev, &toolCallAlreadyEmitted); err != nil {
			return err
		}
	}
	if toolCallAlreadyEmitted && !emittedBefore {
		finishReason = ir.FinishReasonToolCalls
	}

	if p.target == DialectOAI {
		if !toolCallAlreadyEmitted {
			if err := p.oaiOut.WriteFinish(finishReason); err != nil {
				return err
			}
		}
		return p.oaiOut.WriteDone()
	}
	return p.ollOut.WriteDone(finishReason, usage)
}

// WriteUpstreamError emits the terminal error frame for a mid-stream
// backend failure, in the target dialect (spec §4.6, §7).
func WriteUpstreamError(target Dialect, out io.Writer, message, code string) error {
	if target == DialectOAI {
		return oai.NewWriter(out, "", "").WriteError(message, code)
	}
	return oll.NewWriter(out, "").WriteError(message)
}
