package oll

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

func TestReader_DecodesTextFramesAndStopsOnDone(t *testing.T) {
	body := `{"model":"llama3","message":{"role":"assistant","content":"hel"},"done":false}` + "\n" +
		`{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":false}` + "\n" +
		`{"model":"llama3","done":true,"done_reason":"stop"}` + "\n"

	r := NewReader(strings.NewReader(body))

	c1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "hel", c1.Text)

	c2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "lo", c2.Text)

	c3, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, ir.ChunkTypeFinish, c3.Type)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_FallsBackToResponseField(t *testing.T) {
	body := `{"model":"llama3","response":"hi","done":false}` + "\n"
	r := NewReader(strings.NewReader(body))
	c, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "hi", c.Text)
}

func TestWriter_WriteToolCall_DoesNotSetDone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "llama3")

	err := w.WriteToolCall(ir.ExtractedToolCall{Name: "get_weather", Arguments: map[string]interface{}{"city": "Boise"}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"tool_calls"`)
	assert.Contains(t, out, `"done":false`)
}

func TestWriter_WriteDone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "llama3")
	require.NoError(t, w.WriteDone(ir.FinishReasonStop, ir.Usage{InputTokens: 1, OutputTokens: 2}))
	assert.Contains(t, buf.String(), `"done":true`)
}

func TestWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "llama3")
	require.NoError(t, w.WriteError("boom"))
	out := buf.String()
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"done":true`)
}
