package script

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/MrWong99/cuecard/pkg/phrase"
)

const (
	defaultMinWords = 8
	defaultMaxWords = 14
)

// Mode selects the segmentation policy.
type Mode int

const (
	// ModeWholeBlock produces one unit per non-empty block.
	ModeWholeBlock Mode = iota

	// ModeChunked splits every block into sentence-bounded chunks and places an
	// empty separator unit between blocks.
	ModeChunked
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeWholeBlock:
		return "whole-block"
	case ModeChunked:
		return "chunked"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring a [Segmenter].
type Option func(*Segmenter)

// WithChunkWords sets the target word range of chunks in [ModeChunked].
// Non-positive values keep the defaults (8 and 14).
func WithChunkWords(minWords, maxWords int) Option {
	return func(s *Segmenter) {
		if minWords > 0 {
			s.minWords = minWords
		}
		if maxWords > 0 {
			s.maxWords = maxWords
		}
	}
}

// WithResolver sets the resolver used for material blocks.
func WithResolver(r MaterialResolver) Option {
	return func(s *Segmenter) {
		s.resolver = r
	}
}

// Segmenter converts a [Script] into units. It is read-only after
// construction and safe for concurrent use.
type Segmenter struct {
	mode     Mode
	minWords int
	maxWords int
	resolver MaterialResolver
}

// NewSegmenter returns a [Segmenter] for mode.
func NewSegmenter(mode Mode, opts ...Option) *Segmenter {
	s := &Segmenter{
		mode:     mode,
		minWords: defaultMinWords,
		maxWords: defaultMaxWords,
	}
	for _, o := range opts {
		o(s)
	}
	if s.minWords > s.maxWords {
		s.minWords = s.maxWords
	}
	return s
}

// Mode returns the segmentation policy.
func (s *Segmenter) Mode() Mode { return s.mode }

// Segment produces the unit sequence for sc. Blocks whose text normalizes to
// zero tokens are skipped. The returned slice is never mutated afterwards.
func (s *Segmenter) Segment(sc Script) ([]Unit, error) {
	var units []Unit
	for bi, b := range sc.Blocks {
		text, err := resolveText(b, s.resolver)
		if err != nil {
			return nil, fmt.Errorf("script: segment block %d: %w", bi, err)
		}
		if len(phrase.Normalize(text)) == 0 {
			continue
		}
		blockID := b.ID
		if blockID == "" {
			blockID = fmt.Sprintf("block-%d", bi)
		}

		switch s.mode {
		case ModeChunked:
			for ci, chunk := range s.chunk(text) {
				units = append(units, Unit{
					ID:         fmt.Sprintf("%s/%d", blockID, ci),
					Text:       chunk.text,
					Tokens:     chunk.tokens,
					BlockID:    blockID,
					BlockIndex: bi,
				})
			}
			units = append(units, Unit{
				ID:         blockID + "/sep",
				BlockID:    blockID,
				BlockIndex: bi,
				Separator:  true,
			})
		default:
			units = append(units, Unit{
				ID:         blockID,
				Text:       strings.TrimSpace(text),
				Tokens:     phrase.Normalize(text),
				BlockID:    blockID,
				BlockIndex: bi,
			})
		}
	}

	if n := len(units); n > 0 && units[n-1].Separator {
		units = units[:n-1]
	}
	for i := range units {
		units[i].Index = i
	}
	return units, nil
}

type chunk struct {
	text   string
	tokens []string
}

// chunk packs the sentences of text greedily into chunks of at most maxWords
// tokens. Sentences longer than maxWords are split at word boundaries and a
// trailing chunk shorter than minWords is folded into its predecessor.
func (s *Segmenter) chunk(text string) []chunk {
	var (
		out []chunk
		cur chunk
	)
	flush := func() {
		if len(cur.tokens) > 0 {
			out = append(out, cur)
		}
		cur = chunk{}
	}
	add := func(c chunk) {
		cur.text = joinText(cur.text, c.text)
		cur.tokens = append(cur.tokens, c.tokens...)
	}

	for _, sent := range splitSentences(text) {
		tokens := phrase.Normalize(sent)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > s.maxWords {
			flush()
			for _, piece := range splitWords(sent, s.maxWords) {
				add(piece)
				flush()
			}
			continue
		}
		if len(cur.tokens) > 0 && len(cur.tokens)+len(tokens) > s.maxWords {
			flush()
		}
		add(chunk{text: sent, tokens: tokens})
	}
	flush()

	if n := len(out); n > 1 && len(out[n-1].tokens) < s.minWords {
		prev := &out[n-2]
		prev.text = joinText(prev.text, out[n-1].text)
		prev.tokens = append(prev.tokens, out[n-1].tokens...)
		out = out[:n-1]
	}
	return out
}

// splitWords breaks an overlong sentence into pieces of roughly equal token
// count, never exceeding maxWords unless a single word does.
func splitWords(sentence string, maxWords int) []chunk {
	fields := strings.Fields(sentence)
	total := len(phrase.Normalize(sentence))
	pieces := (total + maxWords - 1) / maxWords
	target := (total + pieces - 1) / pieces

	var (
		out []chunk
		cur chunk
	)
	for _, f := range fields {
		tokens := phrase.Normalize(f)
		if len(cur.tokens) > 0 && len(cur.tokens)+len(tokens) > target {
			out = append(out, cur)
			cur = chunk{}
		}
		cur.text = joinText(cur.text, f)
		cur.tokens = append(cur.tokens, tokens...)
	}
	if len(cur.tokens) > 0 {
		out = append(out, cur)
	} else if len(out) > 0 && cur.text != "" {
		out[len(out)-1].text = joinText(out[len(out)-1].text, cur.text)
	}
	return out
}

// splitSentences cuts text after terminal punctuation followed by whitespace
// and at line breaks. Returned sentences are trimmed and never empty.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	rs := []rune(text)
	emit := func(end int) {
		if sent := strings.TrimSpace(string(rs[start:end])); sent != "" {
			out = append(out, sent)
		}
		start = end
	}
	for i, r := range rs {
		switch {
		case r == '\n':
			emit(i + 1)
		case isTerminal(r):
			if i+1 == len(rs) || unicode.IsSpace(rs[i+1]) {
				emit(i + 1)
			}
		}
	}
	emit(len(rs))
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
