// Package normalize folds product names into a comparable form: lower case,
// no diacritics, no stopwords.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is safe for concurrent use.
type Normalizer struct {
	stopwords map[string]struct{}
}

// New builds a Normalizer dropping the given stopwords. Stopwords are folded
// the same way as input tokens so accented and plain forms both match.
func New(stopwords []string) *Normalizer {
	n := &Normalizer{stopwords: make(map[string]struct{}, len(stopwords))}
	for _, w := range stopwords {
		w = fold(w)
		if w != "" {
			n.stopwords[w] = struct{}{}
		}
	}
	return n
}

// NewPortuguese returns a Normalizer using the Portuguese stopword list.
func NewPortuguese() *Normalizer {
	return New(portugueseStopwords)
}

// Normalize lower-cases raw, strips combining marks, drops stopwords and
// collapses whitespace. Applying it twice yields the same result.
func (n *Normalizer) Normalize(raw string) string {
	tokens := strings.Fields(fold(raw))
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := n.stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func fold(s string) string {
	// transform.Chain keeps state, so each call gets its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return strings.TrimSpace(out)
}
