package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/toolbridge/pkg/dialect/oai"
	"github.com/relaybridge/toolbridge/pkg/ir"
)

func TestConvertRequest_StripsToolsAndInjectsPromptWhenBackendLacksNativeTools(t *testing.T) {
	req := ir.Request{
		Model:    "llama3",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "weather in Boise?")},
		Tools:    []ir.Tool{{Name: "get_weather", Description: "d"}},
	}
	body := ConvertRequest(req, DialectOLL, ToolPolicy{BackendSupportsNativeTools: false})

	decoded, err := DecodeRequest(DialectOLL, body)
	require.NoError(t, err)
	assert.Empty(t, decoded.Tools)
	assert.Contains(t, ir.Flatten(decoded.Messages[0].Content), "get_weather")
}

func TestConvertRequest_PassToolsKeepsBothNativeAndInjected(t *testing.T) {
	req := ir.Request{
		Model:    "gpt-4o",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "weather in Boise?")},
		Tools:    []ir.Tool{{Name: "get_weather", Description: "d"}},
	}
	body := ConvertRequest(req, DialectOAI, ToolPolicy{BackendSupportsNativeTools: true, PassTools: true})

	decoded, err := DecodeRequest(DialectOAI, body)
	require.NoError(t, err)
	require.Len(t, decoded.Tools, 1)
	assert.Contains(t, ir.Flatten(decoded.Messages[0].Content), "get_weather")
}

func TestConvertResponse_ExtractsEnvelopeWhenNativeCallAbsent(t *testing.T) {
	result := ir.Result{Text: "Sure.<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>"}
	body := oai.EncodeResponse(result, "llama3")

	known := ir.NewKnownToolSet([]ir.Tool{{Name: "get_weather"}})
	out, err := ConvertResponse(DialectOAI, body, DialectOAI, "llama3", known)
	require.NoError(t, err)

	decoded, err := oai.DecodeResponse(out)
	require.NoError(t, err)
	require.Len(t, decoded.ToolCalls, 1)
	assert.Equal(t, "get_weather", decoded.ToolCalls[0].Name)
	assert.Equal(t, ir.FinishReasonToolCalls, decoded.FinishReason)
}

func TestConvertResponse_NativeToolCallWinsOverEnvelope(t *testing.T) {
	result := ir.Result{
		ToolCalls: []ir.ToolCall{{ID: "call_1", Name: "native_tool", Arguments: map[string]interface{}{}}},
		Text:      "<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>",
	}
	body := oai.EncodeResponse(result, "gpt-4o")

	known := ir.NewKnownToolSet([]ir.Tool{{Name: "get_weather"}, {Name: "native_tool"}})
	out, err := ConvertResponse(DialectOAI, body, DialectOAI, "gpt-4o", known)
	require.NoError(t, err)

	decoded, err := oai.DecodeResponse(out)
	require.NoError(t, err)
	require.Len(t, decoded.ToolCalls, 1)
	assert.Equal(t, "native_tool", decoded.ToolCalls[0].Name)
}

func TestConvertResponse_CrossDialect(t *testing.T) {
	result := ir.Result{Text: "hi there", FinishReason: ir.FinishReasonStop}
	body := oai.EncodeResponse(result, "gpt-4o")

	out, err := ConvertResponse(DialectOAI, body, DialectOLL, "llama3", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "hi there")
}
