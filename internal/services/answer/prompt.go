// Package answer implements the question answering pipeline: retrieval,
// grounded prompt composition, provider generation, and source attribution.
package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/liber/internal/models"
)

// NoInfoMessage is returned verbatim when the index holds nothing relevant
// to the question. Clients may match on it, so the text is fixed.
const NoInfoMessage = "The knowledge base does not contain enough information to answer this question."

// emptyContextMarker stands in for the context block when retrieval found
// nothing, so the model is still told explicitly that no material exists.
const emptyContextMarker = "(no relevant passages were found in the knowledge base)"

// systemInstructions are the grounding rules sent with every generation
const systemInstructions = `You are a careful assistant answering questions about a book using only the provided context.

Rules:
- Answer ONLY from the CONTEXT passages. Do not use outside knowledge.
- If the context does not contain the answer, reply exactly: "` + NoInfoMessage + `"
- Do not invent quotes, page numbers, or events that are not in the context.
- Be concise and answer the question directly.`

// Composer builds grounded prompts from retrieved passages. Composition is
// deterministic: the same passages and question always produce the same
// prompt bytes.
type Composer struct {
	maxContextChars int
}

// NewComposer creates a prompt composer with the given context character
// budget. A budget <= 0 disables truncation.
func NewComposer(maxContextChars int) *Composer {
	return &Composer{maxContextChars: maxContextChars}
}

// Compose builds the grounded prompt for a question. Passages must arrive
// ordered best-first; when the context budget is exceeded, passages are
// dropped from the tail so the least relevant go first. Passages dropped by
// the budget do not appear in the prompt's passage list.
func (c *Composer) Compose(question string, passages []models.RetrievedPassage) *models.GroundedPrompt {
	included := c.fitToBudget(passages)

	contextBlock := emptyContextMarker
	if len(included) > 0 {
		blocks := make([]string, 0, len(included))
		for i, passage := range included {
			blocks = append(blocks, formatPassage(i+1, &passage))
		}
		contextBlock = strings.Join(blocks, "\n\n")
	}

	return &models.GroundedPrompt{
		SystemInstructions: systemInstructions,
		ContextBlock:       contextBlock,
		Question:           question,
		Passages:           included,
	}
}

// fitToBudget returns the longest best-first prefix of passages whose
// formatted blocks fit the character budget. At least one passage is always
// kept, truncated if necessary, so a single oversized chunk cannot empty
// the context.
func (c *Composer) fitToBudget(passages []models.RetrievedPassage) []models.RetrievedPassage {
	if c.maxContextChars <= 0 || len(passages) == 0 {
		return passages
	}

	included := make([]models.RetrievedPassage, 0, len(passages))
	used := 0
	for i, passage := range passages {
		block := formatPassage(i+1, &passage)
		cost := len(block)
		if len(included) > 0 {
			cost += 2 // separator
		}
		if used+cost > c.maxContextChars {
			break
		}
		included = append(included, passage)
		used += cost
	}

	if len(included) == 0 {
		first := passages[0]
		overhead := len(formatPassage(1, &models.RetrievedPassage{Source: first.Source}))
		budget := c.maxContextChars - overhead
		if budget < 0 {
			budget = 0
		}
		if len(first.Content) > budget {
			first.Content = truncateToRune(first.Content, budget)
		}
		included = append(included, first)
	}

	return included
}

// truncateToRune cuts s to at most n bytes without splitting a rune
func truncateToRune(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// formatPassage renders one passage as a numbered context block
func formatPassage(n int, passage *models.RetrievedPassage) string {
	return fmt.Sprintf("Passage %d (source: %s):\n%s", n, passage.Source, passage.Content)
}
