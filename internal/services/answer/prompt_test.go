package answer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/liber/internal/models"
)

func samplePassages() []models.RetrievedPassage {
	return []models.RetrievedPassage{
		{Content: "Call me Ishmael.", Source: "chapters/ch1.md", Score: 0.92},
		{Content: "The Pequod sets sail from Nantucket.", Source: "chapters/ch3.md", Score: 0.81},
		{Content: "Ahab nails a doubloon to the mast.", Source: "chapters/ch36.md", Score: 0.65},
	}
}

func TestCompose_IsDeterministic(t *testing.T) {
	composer := NewComposer(0)
	question := "Who narrates the story?"

	first := composer.Compose(question, samplePassages())
	second := composer.Compose(question, samplePassages())

	assert.Equal(t, first.ContextBlock, second.ContextBlock)
	assert.Equal(t, first.UserMessage(), second.UserMessage())
}

func TestCompose_PreservesRetrievalOrder(t *testing.T) {
	composer := NewComposer(0)
	prompt := composer.Compose("question", samplePassages())

	first := strings.Index(prompt.ContextBlock, "Call me Ishmael.")
	second := strings.Index(prompt.ContextBlock, "The Pequod sets sail")
	third := strings.Index(prompt.ContextBlock, "Ahab nails a doubloon")

	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
}

func TestCompose_EmptyPassagesUsesMarker(t *testing.T) {
	composer := NewComposer(0)
	prompt := composer.Compose("question", nil)

	assert.Equal(t, emptyContextMarker, prompt.ContextBlock)
	assert.Empty(t, prompt.Passages)
}

func TestCompose_BudgetDropsTailFirst(t *testing.T) {
	passages := samplePassages()
	// Budget large enough for the first two blocks only
	firstTwo := len(formatPassage(1, &passages[0])) + 2 + len(formatPassage(2, &passages[1]))
	composer := NewComposer(firstTwo)

	prompt := composer.Compose("question", passages)

	require.Len(t, prompt.Passages, 2)
	assert.Equal(t, "chapters/ch1.md", prompt.Passages[0].Source)
	assert.Equal(t, "chapters/ch3.md", prompt.Passages[1].Source)
	assert.NotContains(t, prompt.ContextBlock, "doubloon")
}

func TestCompose_OversizedFirstPassageIsTruncatedNotDropped(t *testing.T) {
	passages := []models.RetrievedPassage{
		{Content: strings.Repeat("x", 1000), Source: "chapters/ch1.md", Score: 0.9},
	}
	composer := NewComposer(120)

	prompt := composer.Compose("question", passages)

	require.Len(t, prompt.Passages, 1)
	assert.LessOrEqual(t, len(prompt.ContextBlock), 120)
	assert.Contains(t, prompt.ContextBlock, "chapters/ch1.md")
}

func TestCompose_TruncationKeepsValidUTF8(t *testing.T) {
	// Each rune is 3 bytes, so most byte budgets fall mid-rune
	passages := []models.RetrievedPassage{
		{Content: strings.Repeat("鯨", 500), Source: "chapters/ch1.md", Score: 0.9},
	}

	for budget := 60; budget < 70; budget++ {
		composer := NewComposer(budget)
		prompt := composer.Compose("question", passages)

		require.Len(t, prompt.Passages, 1)
		assert.True(t, utf8.ValidString(prompt.Passages[0].Content), "budget %d produced invalid UTF-8", budget)
		assert.True(t, utf8.ValidString(prompt.ContextBlock), "budget %d produced invalid UTF-8 context", budget)
	}
}

func TestCompose_UserMessageFormat(t *testing.T) {
	composer := NewComposer(0)
	prompt := composer.Compose("Who is Ahab?", samplePassages())

	msg := prompt.UserMessage()
	assert.True(t, strings.HasPrefix(msg, "CONTEXT:\n"))
	assert.Contains(t, msg, "\n\nQUESTION:\nWho is Ahab?\n\nFINAL ANSWER:\n")
}

func TestCompose_SystemInstructionsIncludeNoInfoMessage(t *testing.T) {
	composer := NewComposer(0)
	prompt := composer.Compose("question", samplePassages())

	assert.Contains(t, prompt.SystemInstructions, NoInfoMessage)
}
