// Package detector implements the streaming tool-call detector (spec
// §4.2): an incremental state machine that watches a stream of text
// deltas for the envelope sentinel, withholds at most a small trailing
// window of real text while doing so, and hands completed envelope
// bodies to pkg/envelope for parsing.
//
// One Detector is created per stream and driven by exactly one goroutine
// for its whole lifetime (spec §5); it is never shared across requests.
package detector

import (
	"strings"

	"github.com/relaybridge/toolbridge/pkg/envelope"
	"github.com/relaybridge/toolbridge/pkg/ir"
)

// State is the detector's current phase.
type State int

const (
	// PASS: no sentinel seen yet, text passes through modulo the trailing
	// window held back in case it is a sentinel prefix.
	PASS State = iota
	// INSIDE: opening sentinel seen, buffering until the closing sentinel
	// or the buffer cap is hit.
	INSIDE
	// COMPLETE: a tool call has already been synthesized for this stream;
	// further text deltas are dropped for tool-call purposes.
	COMPLETE
)

// margin is added to the opening sentinel's length to size the trailing
// window kept during PASS, per spec §4.2 ("64 bytes").
const margin = 64

// MaxBufferSize bounds INSIDE buffering so a malicious or buggy backend
// cannot force unbounded memory growth (spec §4.2).
const MaxBufferSize = 64 * 1024

var defaultWindowSize = len(envelope.OpeningSentinel) + margin

// EventKind identifies what an Event carries.
type EventKind int

const (
	EventText EventKind = iota
	EventToolCall
)

// Event is one unit of detector output: either text to forward to the
// client as-is, or a completed tool call to synthesize into the target
// dialect's native frame.
type Event struct {
	Kind     EventKind
	Text     string
	ToolCall ir.ExtractedToolCall
}

// Detector is the per-stream state machine. Not safe for concurrent use;
// callers must serialize Feed/Finalize calls (they already are, by
// construction, single-consumer per spec §5).
type Detector struct {
	known ir.KnownToolSet

	state   State
	window  string // PASS: bytes held back pending a possible sentinel match
	partial string // INSIDE: bytes buffered since the opening sentinel

	windowSize    int
	maxBufferSize int
}

// New creates a Detector that only recognizes tool names present in
// known, using the spec-default trailing window (64 bytes past the
// opening sentinel's length) and buffer cap (64 KiB).
func New(known ir.KnownToolSet) *Detector {
	return NewWithLimits(known, defaultWindowSize, MaxBufferSize)
}

// NewWithLimits creates a Detector with an operator-configured trailing
// window size and INSIDE-buffer cap (spec §6: "wrapper-detection window
// size; max tool-call buffer size" are both configuration knobs). Values
// <= 0 fall back to the spec defaults.
func NewWithLimits(known ir.KnownToolSet, windowSize, maxBufferSize int) *Detector {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	if maxBufferSize <= 0 {
		maxBufferSize = MaxBufferSize
	}
	return &Detector{known: known, state: PASS, windowSize: windowSize, maxBufferSize: maxBufferSize}
}

// State reports the detector's current phase, chiefly for tests and
// diagnostics.
func (d *Detector) State() State {
	return d.state
}

// Feed processes one text delta and returns zero or more events to
// forward to the client, in order.
func (d *Detector) Feed(delta string) []Event {
	switch d.state {
	case PASS:
		return d.feedPass(delta)
	case INSIDE:
		return d.feedInside(delta)
	default: // COMPLETE
		return nil
	}
}

func (d *Detector) feedPass(delta string) []Event {
	d.window += delta

	if k := indexOpeningSentinel(d.window); k >= 0 {
		var events []Event
		if k > 0 {
			events = append(events, Event{Kind: EventText, Text: d.window[:k]})
		}
		d.partial = d.window[k:]
		d.window = ""
		d.state = INSIDE
		return events
	}

	if len(d.window) > d.windowSize {
		safe := len(d.window) - d.windowSize
		text := d.window[:safe]
		d.window = d.window[safe:]
		return []Event{{Kind: EventText, Text: text}}
	}
	return nil
}

func (d *Detector) feedInside(delta string) []Event {
	d.partial += delta

	if hasClosingSentinel(d.partial) {
		return d.tryCompleteEnvelope()
	}

	if len(d.partial) > d.maxBufferSize {
		text := d.partial
		d.partial = ""
		d.state = PASS
		return []Event{{Kind: EventText, Text: text}}
	}
	return nil
}

// tryCompleteEnvelope attempts to parse the buffered envelope. On success
// it emits the tool call and moves to COMPLETE, discarding the envelope
// text entirely (it was consumed by the call, per spec §4.2). On failure
// it flushes the buffered text and returns to PASS.
func (d *Detector) tryCompleteEnvelope() []Event {
	buffered := d.partial
	d.partial = ""

	if call, ok := envelope.Extract(buffered, d.known); ok {
		d.state = COMPLETE
		return []Event{{Kind: EventToolCall, ToolCall: call}}
	}

	d.state = PASS
	return []Event{{Kind: EventText, Text: buffered}}
}

// Finalize must be called once, when the upstream stream ends. It applies
// the stream-end policy (spec §4.2): one last parse attempt if INSIDE,
// or flushing the held-back window if still PASS. Never leaves buffered
// bytes silently dropped.
func (d *Detector) Finalize() []Event {
	switch d.state {
	case INSIDE:
		return d.tryCompleteEnvelope()
	case PASS:
		if d.window == "" {
			return nil
		}
		text := d.window
		d.window = ""
		return []Event{{Kind: EventText, Text: text}}
	default: // COMPLETE
		return nil
	}
}

// indexOpeningSentinel finds the opening sentinel in s, recognizing the
// legacy spelling too (pkg/envelope normalizes on parse, but the detector
// must recognize the legacy opening early enough to stop passing it
// through as text).
func indexOpeningSentinel(s string) int {
	if k := strings.Index(s, envelope.OpeningSentinel); k >= 0 {
		return k
	}
	return strings.Index(s, legacyOpeningSentinel)
}

func hasClosingSentinel(s string) bool {
	return strings.Contains(s, envelope.ClosingSentinel) || strings.Contains(s, legacyClosingSentinel)
}

const (
	legacyOpeningSentinel = "<__toolcall__>"
	legacyClosingSentinel = "</__toolcall__>"
)
