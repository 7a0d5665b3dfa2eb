// Package phrase canonicalises spoken and scripted text into comparable word
// tokens.
//
// Both the script segmenter and the live phrase matcher run every piece of text
// through [Normalize] so that token equality means the same thing on either
// side: case is folded, diacritics are stripped and every rune that is not a
// letter or digit acts as a separator. The package holds no state and does not
// consult the process locale.
package phrase

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics returns a fresh transformer that decomposes text, drops
// combining marks and recomposes the remainder. Transformers carry internal
// state, so each call gets its own chain.
func foldDiacritics() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold lowercases s and strips diacritics without splitting it into tokens.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	lowered := strings.ToLower(s)
	folded, _, err := transform.String(foldDiacritics(), lowered)
	if err != nil {
		// The chain only fails on invalid transformer state, never on input.
		return lowered
	}
	return folded
}

// Normalize returns the lowercase, diacritic-folded, alphanumeric tokens of
// text in order. Empty or separator-only input yields a nil slice.
//
//	Normalize("Só, ANYWAY... moving-on!") // ["so" "anyway" "moving" "on"]
func Normalize(text string) []string {
	folded := Fold(text)
	if folded == "" {
		return nil
	}
	return strings.FieldsFunc(folded, isSeparator)
}

// Join renders tokens back into a single space-separated string. Normalizing
// the result yields tokens again.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// WordCount reports how many tokens [Normalize] would produce for text.
func WordCount(text string) int {
	return len(Normalize(text))
}

// Equal reports whether a and b normalize to the same token sequence.
func Equal(a, b string) bool {
	ta, tb := Normalize(a), Normalize(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
