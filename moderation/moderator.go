// Package moderation censors forbidden terms in message content before it
// is persisted or indexed.
package moderation

import (
	"fmt"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Censor masks occurrences of configured words using an Aho-Corasick
// automaton, so the cost stays linear in the message length regardless of
// how many words are configured.
type Censor struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewCensor builds the automaton over the lowercased word list.
func NewCensor(words []string, mask rune) (*Censor, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("censored word list is empty")
	}
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if runes := foldRunes([]rune(word)); len(runes) > 0 {
			patterns = append(patterns, runes)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, fmt.Errorf("building censor automaton: %w", err)
	}
	return &Censor{machine: machine, mask: mask}, nil
}

// Apply replaces every matched span with the mask rune, case-insensitively.
// Matching runs on a case-folded copy of the text; folding is rune-for-rune,
// so match positions map directly back onto the original.
func (c *Censor) Apply(text string) string {
	original := []rune(text)
	if len(original) == 0 {
		return text
	}

	spans := c.machine.MultiPatternSearch(foldRunes(original), false)
	if len(spans) == 0 {
		return text
	}

	for _, span := range spans {
		end := span.Pos + len(span.Word)
		if span.Pos < 0 || end > len(original) {
			continue
		}
		for i := span.Pos; i < end; i++ {
			original[i] = c.mask
		}
	}
	return string(original)
}

func foldRunes(input []rune) []rune {
	folded := make([]rune, len(input))
	for i, r := range input {
		folded[i] = unicode.ToLower(r)
	}
	return folded
}
