package matcher

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultNearThreshold = 0.85
	minNearRunes         = 3
)

// ScorerOption is a functional option for configuring a [Scorer].
type ScorerOption func(*Scorer)

// WithNearThreshold sets the minimum Jaro-Winkler similarity for two
// different words to count as a near match. Default: 0.85.
func WithNearThreshold(threshold float64) ScorerOption {
	return func(s *Scorer) {
		s.nearThreshold = threshold
	}
}

// Scorer computes how well the tail of a transcript window matches a phrase.
//
// Scoring is an ordered alignment: phrase words must appear in the window in
// the same relative order, with gaps of up to 1 + n/6 inserted words for an
// n-word phrase. Each aligned pair earns credit; the confidence is the total
// credit divided by the phrase length. Identical words earn 1. Different words
// earn their Jaro-Winkler similarity when they sound alike (shared Double
// Metaphone code), are spelled alike (Levenshtein distance within 1 + len/6)
// and are at least three letters long. Everything else earns nothing, so a
// recognizer that splits "anyway" into "any way" loses that word entirely.
//
// Scorer is read-only after construction and safe for concurrent use.
type Scorer struct {
	nearThreshold float64
}

// NewScorer returns a [Scorer] configured with opts.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{nearThreshold: defaultNearThreshold}
	for _, o := range opts {
		o(s)
	}
	return s
}

// alignment is the result of scoring a phrase against a window.
type alignment struct {
	confidence float64
	// last is the index in the window of the last aligned word, -1 if none.
	last int
}

// Score returns the confidence in [0,1] that phrase was spoken in window.
func (s *Scorer) Score(phrase, window []string) float64 {
	return s.align(phrase, window).confidence
}

func (s *Scorer) align(phrase, window []string) alignment {
	best := alignment{last: -1}
	n := len(phrase)
	if n == 0 || len(window) == 0 {
		return best
	}
	span := n + slack(n)

	for start := range window {
		end := min(start+span, len(window))
		credit, last := s.lcs(phrase, window[start:end])
		conf := credit / float64(n)
		if conf > best.confidence {
			best = alignment{confidence: conf, last: start + last}
		}
	}
	if best.confidence > 1 {
		best.confidence = 1
	}
	return best
}

// slack is the number of inserted or substituted words tolerated for a phrase
// of n words.
func slack(n int) int {
	return 1 + n/6
}

// lcs computes a weighted longest common subsequence of phrase and seg and
// returns the credit together with the index in seg of the last aligned word.
func (s *Scorer) lcs(phrase, seg []string) (float64, int) {
	rows, cols := len(phrase)+1, len(seg)+1
	dp := make([]float64, rows*cols)
	at := func(i, j int) *float64 { return &dp[i*cols+j] }

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			v := max(*at(i-1, j), *at(i, j-1))
			if c := s.credit(phrase[i-1], seg[j-1]); c > 0 {
				v = max(v, *at(i-1, j-1)+c)
			}
			*at(i, j) = v
		}
	}

	total := *at(rows-1, cols-1)
	if total == 0 {
		return 0, -1
	}
	// Walk back to the last aligned window word.
	i, j := rows-1, cols-1
	for i > 0 && j > 0 {
		switch {
		case *at(i, j) == *at(i-1, j):
			i--
		case *at(i, j) == *at(i, j-1):
			j--
		default:
			return total, j - 1
		}
	}
	return total, -1
}

// credit scores a single phrase word against a single window word.
func (s *Scorer) credit(want, got string) float64 {
	if want == got {
		return 1
	}
	wl, gl := utf8.RuneCountInString(want), utf8.RuneCountInString(got)
	if wl < minNearRunes || gl < minNearRunes {
		return 0
	}
	jw := matchr.JaroWinkler(want, got, false)
	if jw < s.nearThreshold {
		return 0
	}
	if matchr.Levenshtein(want, got) > 1+max(wl, gl)/6 {
		return 0
	}
	if !soundAlike(want, got) {
		return 0
	}
	return jw
}

// soundAlike reports whether a and b share a Double Metaphone code.
func soundAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
