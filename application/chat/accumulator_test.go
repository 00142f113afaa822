package chat

import (
	"testing"

	"github.com/AIENGINE/online-cs-backend/domain/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedDelta(name, args string) chat.ToolCallDelta {
	return chat.ToolCallDelta{Function: chat.FunctionCall{Name: name, Arguments: args}}
}

func argsDelta(args string) chat.ToolCallDelta {
	return chat.ToolCallDelta{Function: chat.FunctionCall{Arguments: args}}
}

func TestAccumulator_SingleFragment(t *testing.T) {
	acc := &toolCallAccumulator{}
	acc.add(namedDelta("call_sports_dept", `{"customer_query": "my sneakers broke"}`))

	require.True(t, acc.complete())
	name, args := acc.resolve()
	assert.Equal(t, "call_sports_dept", name)
	assert.Equal(t, `{"customer_query": "my sneakers broke"}`, args)
	assert.False(t, acc.active)
}

func TestAccumulator_SplitAcrossFragments(t *testing.T) {
	full := `{"customer_query": "my sneakers broke"}`

	// Any split of the argument text accumulates to the same call
	for cut := 0; cut <= len(full); cut++ {
		acc := &toolCallAccumulator{}
		acc.add(namedDelta("call_sports_dept", full[:cut]))
		if cut < len(full) {
			require.False(t, acc.complete(), "cut at %d should be incomplete", cut)
			acc.add(argsDelta(full[cut:]))
		}
		require.True(t, acc.complete(), "cut at %d", cut)
		name, args := acc.resolve()
		assert.Equal(t, "call_sports_dept", name)
		assert.Equal(t, full, args)
	}
}

func TestAccumulator_PrematureBraceInsideString(t *testing.T) {
	acc := &toolCallAccumulator{}
	acc.add(namedDelta("call_travel_dept", `{"customer_query": "flight to }`))

	// Ends with '}' but does not parse: keep accumulating, no error
	assert.False(t, acc.complete())

	acc.add(argsDelta(`Berlin"}`))
	require.True(t, acc.complete())
	_, args := acc.resolve()
	assert.Equal(t, `{"customer_query": "flight to }Berlin"}`, args)
}

func TestAccumulator_NeverValidJSON(t *testing.T) {
	acc := &toolCallAccumulator{}
	acc.add(namedDelta("call_sports_dept", `{"customer_query": "unterminated`))
	assert.False(t, acc.complete())

	// Stream ends here; the pending call is simply abandoned
	acc.reset()
	assert.False(t, acc.active)
	assert.False(t, acc.complete())
}

func TestAccumulator_SecondNamedCallOverwritesPending(t *testing.T) {
	acc := &toolCallAccumulator{}
	acc.add(namedDelta("call_sports_dept", `{"customer_query":`))
	acc.add(namedDelta("call_travel_dept", `{"customer_query": "lost luggage"}`))

	require.True(t, acc.complete())
	name, args := acc.resolve()
	assert.Equal(t, "call_travel_dept", name)
	assert.Equal(t, `{"customer_query": "lost luggage"}`, args)
}

func TestAccumulator_NamelessFragmentWhileIdleIsDropped(t *testing.T) {
	acc := &toolCallAccumulator{}
	acc.add(argsDelta(`{"stray": true}`))
	assert.False(t, acc.active)
	assert.False(t, acc.complete())
}

func TestAccumulator_IncompleteWithoutName(t *testing.T) {
	acc := &toolCallAccumulator{}
	acc.add(namedDelta("", "{}"))
	assert.False(t, acc.complete())
}
