package envelope

import (
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

func TestExtract_SimpleLeafArguments(t *testing.T) {
	text := `Sure, let me check.` +
		`<toolbridge:calls><get_weather><city>Boise</city><days>3</days><metric>true</metric></get_weather></toolbridge:calls>`

	call, ok := Extract(text, knownSet("get_weather"))
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, "Boise", call.Arguments["city"])
	assert.Equal(t, float64(3), call.Arguments["days"])
	assert.Equal(t, true, call.Arguments["metric"])
}

func TestExtract_NestedObjectArguments(t *testing.T) {
	text := `<toolbridge:calls><search><query><text>go proxy</text><limit>5</limit></query></search></toolbridge:calls>`

	call, ok := Extract(text, knownSet("search"))
	require.True(t, ok)
	query, ok := call.Arguments["query"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "go proxy", query["text"])
	assert.Equal(t, float64(5), query["limit"])
}

func TestExtract_RepeatedChildBecomesArray(t *testing.T) {
	text := `<toolbridge:calls><batch><id>1</id><id>2</id><id>3</id></batch></toolbridge:calls>`

	call, ok := Extract(text, knownSet("batch"))
	require.True(t, ok)
	ids, ok := call.Arguments["id"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, ids)
}

func TestExtract_UnknownRootTagIsIgnored(t *testing.T) {
	text := `<toolbridge:calls><not_a_tool><x>1</x></not_a_tool></toolbridge:calls>`

	_, ok := Extract(text, knownSet("get_weather"))
	assert.False(t, ok)
}

func TestExtract_MalformedXMLIsIgnored(t *testing.T) {
	text := `<toolbridge:calls><get_weather><city>Boise</get_weather></toolbridge:calls>`

	_, ok := Extract(text, knownSet("get_weather"))
	assert.False(t, ok)
}

func TestExtract_NoSentinelPresent(t *testing.T) {
	_, ok := Extract("just plain text, no tool call here", knownSet("get_weather"))
	assert.False(t, ok)
}

func TestExtract_LastCompleteEnvelopeWins(t *testing.T) {
	text := `<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>` +
		` some text in between ` +
		`<toolbridge:calls><get_weather><city>Reno</city></get_weather></toolbridge:calls>`

	call, ok := Extract(text, knownSet("get_weather"))
	require.True(t, ok)
	assert.Equal(t, "Reno", call.Arguments["city"])
}

func TestExtract_SkipsIncompleteTrailingEnvelope(t *testing.T) {
	text := `<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>` +
		`<toolbridge:calls><get_weather><city>Reno`

	call, ok := Extract(text, knownSet("get_weather"))
	require.True(t, ok)
	assert.Equal(t, "Boise", call.Arguments["city"])
}

func TestExtract_FirstElementWinsWithinOneEnvelope(t *testing.T) {
	text := `<toolbridge:calls><get_weather><city>Boise</city></get_weather><get_time><zone>MST</zone></get_time></toolbridge:calls>`

	call, ok := Extract(text, knownSet("get_weather", "get_time"))
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Name)
}

func TestExtract_LegacySentinelRecognizedOnInput(t *testing.T) {
	text := `<__toolcall__><get_weather><city>Boise</city></get_weather></__toolcall__>`

	call, ok := Extract(text, knownSet("get_weather"))
	require.True(t, ok)
	assert.Equal(t, "Boise", call.Arguments["city"])
}

func TestExtract_NestedSentinelBecomesLiteralText(t *testing.T) {
	text := `<toolbridge:calls><search><query>look for <toolbridge:calls> in docs</query></search></toolbridge:calls>`

	call, ok := Extract(text, knownSet("search"))
	require.True(t, ok)
	assert.Contains(t, call.Arguments["query"], "<toolbridge:calls>")
}

func TestScrubThinking_RemovesAllDelimiterForms(t *testing.T) {
	cases := []string{
		"before <think>reasoning here</think> after",
		"before <thinking>reasoning here</thinking> after",
		"before ◁think▷reasoning here◁/think▷ after",
		"before [thinking]reasoning here[/thinking] after",
	}
	for _, c := range cases {
		got := ScrubThinking(c)
		assert.Equal(t, "before  after", got)
	}
}

func TestExtract_ThinkingTagSuppressesFalsePositive(t *testing.T) {
	text := `<think>I could call <toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls> but I won't</think>No tool needed.`

	_, ok := Extract(text, knownSet("get_weather"))
	assert.False(t, ok)
}

func TestExtractAll_ReturnsEveryValidCall(t *testing.T) {
	text := `<toolbridge:calls><get_weather><city>Boise</city></get_weather></toolbridge:calls>` +
		`<toolbridge:calls><get_weather><city>Reno</city></get_weather></toolbridge:calls>`

	calls := ExtractAll(text, knownSet("get_weather"))
	require.Len(t, calls, 2)
	assert.Equal(t, "Boise", calls[0].Arguments["city"])
	assert.Equal(t, "Reno", calls[1].Arguments["city"])
}

func TestExtract_EmptyArgumentsForNoParamTool(t *testing.T) {
	text := `<toolbridge:calls><list_files></list_files></toolbridge:calls>`

	call, ok := Extract(text, knownSet("list_files"))
	require.True(t, ok)
	assert.Empty(t, call.Arguments)
}

func TestExtract_LeafArgumentParsesAsJSONArray(t *testing.T) {
	text := `<toolbridge:calls><batch><ids>[1, 2, 3]</ids></batch></toolbridge:calls>`

	call, ok := Extract(text, knownSet("batch"))
	require.True(t, ok)
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, call.Arguments["ids"])
}

func TestExtract_LeafArgumentRepairsNearMissJSON(t *testing.T) {
	text := `<toolbridge:calls><search><filters>{city: 'Boise', limit: 5,}</filters></search></toolbridge:calls>`

	call, ok := Extract(text, knownSet("search"))
	require.True(t, ok)
	filters, ok := call.Arguments["filters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Boise", filters["city"])
	assert.Equal(t, float64(5), filters["limit"])
}

func TestExtract_LeafArgumentFallsBackToStringWhenUnrepairable(t *testing.T) {
	text := `<toolbridge:calls><search><note>[not json at all</note></search></toolbridge:calls>`

	call, ok := Extract(text, knownSet("search"))
	require.True(t, ok)
	assert.Equal(t, "[not json at all", call.Arguments["note"])
}
