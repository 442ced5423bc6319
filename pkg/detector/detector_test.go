package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

func knownSet(names ...string) ir.KnownToolSet {
	tools := make([]ir.Tool, len(names))
	for i, n := range names {
		tools[i] = ir.Tool{Name: n}
	}
	return ir.NewKnownToolSet(tools)
}

// feedAll drives d with deltas split at every rune boundary, which exercises
// the window/buffer logic far harder than feeding the whole string at once.
func feedAllByRune(d *Detector, s string) []Event {
	var events []Event
	for _, r := range s {
		events = append(events, d.Feed(string(r))...)
	}
	events = append(events, d.Finalize()...)
	return events
}

func textOf(events []Event) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Kind == EventText {
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}

func toolCallOf(events []Event) (ir.ExtractedToolCall, bool) {
	for _, e := range events {
		if e.Kind == EventToolCall {
			return e.ToolCall, true
		}
	}
	return ir.ExtractedToolCall{}, false
}

func TestDetector_TransparentWhenNoSentinel(t *testing.T) {
	d := New(knownSet("get_weather"))
	text := "The weather in Boise is sunny and 72 degrees today, with light winds."
	events := feedAllByRune(d, text)
	assert.Equal(t, text, textOf(events))
	_, hasCall := toolCallOf(events)
	assert.False(t, hasCall)
}

func TestDetector_ExtractsToolCallAcrossChunkBoundaries(t *testing.T) {
	d := New(knownSet("get_weather"))
	text := "Let me check that.<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>"
	events := feedAllByRune(d, text)

	assert.Equal(t, "Let me check that.", textOf(events))
	call, ok := toolCallOf(events)
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, "Boise", call.Arguments["city"])
	assert.Equal(t, COMPLETE, d.State())
}

func TestDetector_MalformedEnvelopeFlushesAsText(t *testing.T) {
	d := New(knownSet("get_weather"))
	text := "before <toolbridge:calls><get_weather><city>Boise</get_weather></toolbridge:calls> after"
	events := feedAllByRune(d, text)

	_, hasCall := toolCallOf(events)
	assert.False(t, hasCall)
	assert.Equal(t, text, textOf(events))
	assert.Equal(t, PASS, d.State())
}

func TestDetector_UnknownToolNameFlushesAsText(t *testing.T) {
	d := New(knownSet("get_weather"))
	text := "before <toolbridge:calls><unlisted_tool><x>1</x></unlisted_tool></toolbridge:calls> after"
	events := feedAllByRune(d, text)

	_, hasCall := toolCallOf(events)
	assert.False(t, hasCall)
	assert.Equal(t, text, textOf(events))
}

func TestDetector_UnterminatedEnvelopeFinalizesAsText(t *testing.T) {
	d := New(knownSet("get_weather"))
	text := "before <toolbridge:calls><get_weather><city>Boise</city>"
	events := feedAllByRune(d, text)

	_, hasCall := toolCallOf(events)
	assert.False(t, hasCall)
	assert.Equal(t, text, textOf(events))
}

func TestDetector_FeedEmitsToolCallWhenClosedOnLastDelta(t *testing.T) {
	d := New(knownSet("get_weather"))
	events := d.Feed("<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>")
	call, ok := toolCallOf(events)
	require.True(t, ok)
	assert.Equal(t, "Boise", call.Arguments["city"])
	assert.Empty(t, d.Finalize())
}

func TestDetector_CompleteStateDropsFurtherTextDeltas(t *testing.T) {
	d := New(knownSet("get_weather"))
	d.Feed("<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>")
	require.Equal(t, COMPLETE, d.State())

	events := d.Feed("some trailing text the backend still sent")
	assert.Empty(t, events)
}

func TestDetector_BufferOverflowFlushesAndResetsToPass(t *testing.T) {
	d := New(knownSet("get_weather"))
	d.Feed("<toolbridge:calls>")
	require.Equal(t, INSIDE, d.State())

	huge := strings.Repeat("x", MaxBufferSize+1)
	events := d.Feed(huge)

	assert.Equal(t, PASS, d.State())
	assert.Contains(t, textOf(events), "<toolbridge:calls>")
	_, hasCall := toolCallOf(events)
	assert.False(t, hasCall)
}

func TestDetector_WithholdsAtMostWindowSizeOfText(t *testing.T) {
	d := New(knownSet("get_weather"))
	// Feed one byte at a time; at no point should more than the window
	// size be withheld in the PASS-state window.
	for _, r := range strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20) {
		d.Feed(string(r))
		assert.LessOrEqual(t, len(d.window), d.windowSize)
	}
}

func TestDetector_SentinelSplitAcrossManyTinyDeltas(t *testing.T) {
	d := New(knownSet("ping"))
	sentinel := "<toolbridge:calls><ping></ping></toolbridge:calls>"
	var events []Event
	for i := 0; i < len(sentinel); i++ {
		events = append(events, d.Feed(sentinel[i:i+1])...)
	}
	events = append(events, d.Finalize()...)

	call, ok := toolCallOf(events)
	require.True(t, ok)
	assert.Equal(t, "ping", call.Name)
}

func TestDetector_NewWithLimits_SmallerBufferFlushesEarlier(t *testing.T) {
	d := NewWithLimits(knownSet("get_weather"), 16, 32)
	d.Feed("<toolbridge:calls><get_weather>")
	require.Equal(t, INSIDE, d.State())

	events := d.Feed(strings.Repeat("x", 33))
	assert.Equal(t, PASS, d.State())
	_, hasCall := toolCallOf(events)
	assert.False(t, hasCall)
}

func TestDetector_NewWithLimits_NonPositiveFallsBackToDefaults(t *testing.T) {
	d := NewWithLimits(knownSet("get_weather"), 0, -1)
	assert.Equal(t, defaultWindowSize, d.windowSize)
	assert.Equal(t, MaxBufferSize, d.maxBufferSize)
}
