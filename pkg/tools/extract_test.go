package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToolUsesInOrder(t *testing.T) {
	answer := "ok <ToolUse>callA</ToolUse> middle <ToolUse>callB</ToolUse> done"

	calls := ExtractToolUses(answer)
	assert.Equal(t, []string{"callA", "callB"}, calls)
}

func TestExtractToolUsesNoneFound(t *testing.T) {
	assert.Empty(t, ExtractToolUses("just a plain answer"))
	assert.Empty(t, ExtractToolUses(""))
}

func TestExtractToolUsesUnbalancedTagNotMatched(t *testing.T) {
	answer := "ok <ToolUse>dangling call without close"
	assert.Empty(t, ExtractToolUses(answer))

	answer = "stray close</ToolUse> here"
	assert.Empty(t, ExtractToolUses(answer))
}

func TestStripToolUsesIdempotentOnPlainText(t *testing.T) {
	answer := "no directives at all"
	assert.Equal(t, answer, StripToolUses(answer))
}

func TestStripToolUsesRemovesDelimitersAndCall(t *testing.T) {
	answer := "ok <ToolUse>callA</ToolUse> done"
	assert.Equal(t, "ok  done", StripToolUses(answer))
}

func TestStripToolUsesLeavesUnbalancedUntouched(t *testing.T) {
	answer := "ok <ToolUse>dangling"
	assert.Equal(t, answer, StripToolUses(answer))
}

func TestStripToolUsesMultiple(t *testing.T) {
	answer := "<ToolUse>a</ToolUse>x<ToolUse>b</ToolUse>"
	assert.Equal(t, "x", StripToolUses(answer))
}

func TestExtractToolUsesEmptyCall(t *testing.T) {
	calls := ExtractToolUses("<ToolUse></ToolUse>")
	assert.Equal(t, []string{""}, calls)
}
