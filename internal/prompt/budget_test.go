package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetAssembleKeepsHeaderAndMetaPromptRegardlessOfBudget(t *testing.T) {
	sections := []section{
		{name: "header", text: "one two three four five"},
		{name: "meta-prompt", text: "six seven eight nine ten"},
		{name: "elites", text: strings.Repeat("word ", 100)},
	}
	out := budgetAssemble(sections, 1)
	assert.Contains(t, out, "one two three four five")
	assert.Contains(t, out, "six seven eight nine ten")
	assert.NotContains(t, out, strings.Repeat("word ", 100))
}

func TestBudgetAssembleStopsAtFirstOverflowingSection(t *testing.T) {
	sections := []section{
		{name: "header", text: "h"},
		{name: "meta-prompt", text: "m"},
		{name: "elites", text: "one two three"},
		{name: "novel", text: "four five six"},
	}
	out := budgetAssemble(sections, 5)
	assert.Contains(t, out, "one two three")
	assert.NotContains(t, out, "four five six")
}

func TestApproxTokensCountsWhitespaceWords(t *testing.T) {
	assert.Equal(t, 3, approxTokens("foo bar baz"))
	assert.Equal(t, 0, approxTokens(""))
}
