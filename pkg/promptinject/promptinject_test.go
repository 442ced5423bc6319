package promptinject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

func sampleTools() []ir.Tool {
	return []ir.Tool{
		{
			Name:        "get_weather",
			Description: "Fetch current weather for a city",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"city": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"city"},
			},
		},
	}
}

func TestBuild_ContainsMandatoryElements(t *testing.T) {
	block := Build(sampleTools())
	assert.Contains(t, block, "get_weather")
	assert.Contains(t, block, "ONLY tools available")
	assert.Contains(t, block, "<toolbridge:calls>")
	assert.Contains(t, block, "invisible to the user")
	assert.Contains(t, block, "No-parameter call")
	assert.Contains(t, block, "Single-parameter call")
	assert.Contains(t, block, "Multi-parameter call")
}

func TestSplice_PrependsSystemMessageWhenNoneExists(t *testing.T) {
	messages := []ir.Message{ir.TextMessage(ir.RoleUser, "hi")}
	out := Splice(messages, sampleTools())

	require.Len(t, out, 2)
	assert.Equal(t, ir.RoleSystem, out[0].Role)
	assert.Contains(t, ir.Flatten(out[0].Content), "get_weather")
}

func TestSplice_AppendsToExistingSystemMessage(t *testing.T) {
	messages := []ir.Message{
		ir.TextMessage(ir.RoleSystem, "You are terse."),
		ir.TextMessage(ir.RoleUser, "hi"),
	}
	out := Splice(messages, sampleTools())

	require.Len(t, out, 2)
	assert.Contains(t, ir.Flatten(out[0].Content), "You are terse.")
	assert.Contains(t, ir.Flatten(out[0].Content), "get_weather")
}

func TestSplice_IdempotentWhenAlreadyPresent(t *testing.T) {
	messages := []ir.Message{
		ir.TextMessage(ir.RoleSystem, "instructions already here <toolbridge:calls>"),
		ir.TextMessage(ir.RoleUser, "hi"),
	}
	out := Splice(messages, sampleTools())
	assert.Equal(t, messages, out)
}

func TestSplice_NoToolsIsNoOp(t *testing.T) {
	messages := []ir.Message{ir.TextMessage(ir.RoleUser, "hi")}
	out := Splice(messages, nil)
	assert.Equal(t, messages, out)
}

func TestShouldReinject_TriggersOnMessageCount(t *testing.T) {
	policy := Policy{ReinjectEnabled: true, NMsg: 5, NTok: 10000}
	messages := []ir.Message{ir.TextMessage(ir.RoleUser, "hi")}
	assert.True(t, ShouldReinject(policy, messages, 6, 0))
	assert.False(t, ShouldReinject(policy, messages, 3, 0))
}

func TestShouldReinject_SkipsWhenDisabled(t *testing.T) {
	policy := Policy{ReinjectEnabled: false, NMsg: 1, NTok: 1}
	messages := []ir.Message{ir.TextMessage(ir.RoleUser, "hi")}
	assert.False(t, ShouldReinject(policy, messages, 100, 100))
}

func TestShouldReinject_DedupWindowSkipsIfRecentlyInjected(t *testing.T) {
	policy := Policy{ReinjectEnabled: true, NMsg: 1, NTok: 1}
	messages := []ir.Message{
		ir.TextMessage(ir.RoleUser, "older"),
		ir.TextMessage(ir.RoleAssistant, "tool calls are invisible to the user"),
	}
	assert.False(t, ShouldReinject(policy, messages, 10, 10))
}

func TestReinject_UsesSystemRoleWhenExactlyOneSystemMessage(t *testing.T) {
	messages := []ir.Message{
		ir.TextMessage(ir.RoleSystem, "base"),
		ir.TextMessage(ir.RoleUser, "hi"),
	}
	out := Reinject(messages, sampleTools())
	require.Len(t, out, 3)
	assert.Equal(t, ir.RoleSystem, out[1].Role)
}

func TestReinject_UsesUserRoleWhenMultipleOrNoSystemMessages(t *testing.T) {
	messages := []ir.Message{ir.TextMessage(ir.RoleUser, "hi")}
	out := Reinject(messages, sampleTools())
	require.Len(t, out, 2)
	assert.Equal(t, ir.RoleUser, out[1].Role)
}

func TestEstimateTokens_FourCharsPerToken(t *testing.T) {
	assert.Equal(t, 5, EstimateTokens("twenty_characters!!!"))
}
