package matcher

import (
	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/phrase"
)

// DefaultWindowSize is the minimum number of words kept in a [Window].
const DefaultWindowSize = 24

// word is a normalized token with its absolute position in the transcript.
type word struct {
	text string
	pos  int
}

// Window is a bounded rolling view of the most recent transcript words.
//
// Final text is committed and kept up to the window size. The latest partial
// hypothesis is held separately and replaced wholesale by the next partial or
// final, so a later partial always supersedes an earlier one. Words before the
// consumed watermark are hidden from [Window.View] so text that already
// triggered a match cannot trigger again.
//
// Window is not safe for concurrent use.
type Window struct {
	size      int
	committed []word
	partial   []word
	next      int
	watermark int
}

// NewWindow returns a window holding at most size words. Sizes below
// [DefaultWindowSize] are raised to it.
func NewWindow(size int) *Window {
	return &Window{size: max(size, DefaultWindowSize)}
}

// Size returns the capacity of the window.
func (w *Window) Size() int { return w.size }

// Grow raises the capacity to at least size. The window never shrinks.
func (w *Window) Grow(size int) {
	if size > w.size {
		w.size = size
	}
}

// Push applies a transcript event and reports whether the visible words
// changed. Events without tokens are ignored and leave the window intact.
func (w *Window) Push(ev transcript.Event) bool {
	tokens := phrase.Normalize(ev.Text)
	if len(tokens) == 0 {
		return false
	}

	words := make([]word, len(tokens))
	for i, t := range tokens {
		words[i] = word{text: t, pos: w.next + i}
	}

	// A revision may be shorter than the hypothesis that was consumed, so
	// the watermark never reaches past the end of the current utterance.
	if !ev.Final {
		w.partial = words
		w.watermark = min(w.watermark, w.next+len(words))
		return true
	}

	w.partial = nil
	w.committed = append(w.committed, words...)
	w.next += len(words)
	w.watermark = min(w.watermark, w.next)
	if over := len(w.committed) - w.size; over > 0 {
		w.committed = append(w.committed[:0:0], w.committed[over:]...)
	}
	return true
}

// View returns the last Size words of committed text followed by the current
// partial, excluding consumed words.
func (w *Window) View() []word {
	all := make([]word, 0, len(w.committed)+len(w.partial))
	all = append(all, w.committed...)
	all = append(all, w.partial...)
	if over := len(all) - w.size; over > 0 {
		all = all[over:]
	}
	for i, wd := range all {
		if wd.pos >= w.watermark {
			return all[i:]
		}
	}
	return nil
}

// Words returns the visible words as plain strings.
func (w *Window) Words() []string {
	view := w.View()
	out := make([]string, len(view))
	for i, wd := range view {
		out[i] = wd.text
	}
	return out
}

// Consume hides every word at or before pos from future views.
func (w *Window) Consume(pos int) {
	if pos+1 > w.watermark {
		w.watermark = pos + 1
	}
}

// Clear drops all words, including the partial.
func (w *Window) Clear() {
	w.committed = nil
	w.partial = nil
	w.watermark = w.next
}
