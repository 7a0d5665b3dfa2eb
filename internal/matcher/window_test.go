package matcher

import (
	"slices"
	"testing"

	"github.com/MrWong99/cuecard/internal/transcript"
)

func final(text string) transcript.Event   { return transcript.Event{Text: text, Final: true} }
func partial(text string) transcript.Event { return transcript.Event{Text: text} }

func TestWindow_PartialSupersedes(t *testing.T) {
	w := NewWindow(0)
	w.Push(partial("so any"))
	w.Push(partial("so anyway here"))
	if got, want := w.Words(), []string{"so", "anyway", "here"}; !slices.Equal(got, want) {
		t.Fatalf("Words = %q, want %q", got, want)
	}

	w.Push(final("so anyway here we go"))
	w.Push(partial("moving"))
	if got, want := w.Words(), []string{"so", "anyway", "here", "we", "go", "moving"}; !slices.Equal(got, want) {
		t.Fatalf("Words = %q, want %q", got, want)
	}
}

func TestWindow_EmptyEventsKeepWords(t *testing.T) {
	w := NewWindow(0)
	w.Push(final("hello there"))
	for _, ev := range []transcript.Event{partial(""), final("   "), partial("..."), final("")} {
		if w.Push(ev) {
			t.Errorf("Push(%q) reported a change", ev.Text)
		}
	}
	if got, want := w.Words(), []string{"hello", "there"}; !slices.Equal(got, want) {
		t.Errorf("Words = %q, want %q", got, want)
	}
}

func TestWindow_Bounded(t *testing.T) {
	w := NewWindow(DefaultWindowSize)
	for range 10 {
		w.Push(final("one two three four five"))
	}
	if got := len(w.Words()); got != DefaultWindowSize {
		t.Errorf("len(Words) = %d, want %d", got, DefaultWindowSize)
	}
	w.Push(partial("six seven"))
	words := w.Words()
	if len(words) != DefaultWindowSize {
		t.Errorf("len(Words) with partial = %d, want %d", len(words), DefaultWindowSize)
	}
	if words[len(words)-1] != "seven" {
		t.Errorf("last word = %q, want seven", words[len(words)-1])
	}
}

func TestWindow_Grow(t *testing.T) {
	w := NewWindow(0)
	w.Grow(10)
	if w.Size() != DefaultWindowSize {
		t.Errorf("Grow below default changed size to %d", w.Size())
	}
	w.Grow(40)
	if w.Size() != 40 {
		t.Errorf("Size = %d, want 40", w.Size())
	}
}

func TestWindow_Consume(t *testing.T) {
	w := NewWindow(0)
	w.Push(final("so anyway moving on"))
	view := w.View()
	w.Consume(view[1].pos)
	if got, want := w.Words(), []string{"moving", "on"}; !slices.Equal(got, want) {
		t.Errorf("Words = %q, want %q", got, want)
	}

	// A partial re-delivering consumed words keeps them hidden.
	w2 := NewWindow(0)
	w2.Push(partial("so anyway"))
	w2.Consume(w2.View()[1].pos)
	w2.Push(partial("so anyway moving on"))
	if got, want := w2.Words(), []string{"moving", "on"}; !slices.Equal(got, want) {
		t.Errorf("Words after partial = %q, want %q", got, want)
	}

	w2.Clear()
	if got := w2.Words(); len(got) != 0 {
		t.Errorf("Words after Clear = %q", got)
	}
	w2.Push(partial("fresh start"))
	if got := w2.Words(); len(got) != 2 {
		t.Errorf("Words after Clear and Push = %q", got)
	}
}

func TestWindow_ShorterRevisionKeepsNextUtterance(t *testing.T) {
	tests := []struct {
		name   string
		revise transcript.Event
		then   transcript.Event
		want   []string
	}{
		{
			name:   "final drops filler",
			revise: final("moving on"),
			then:   final("so anyway"),
			want:   []string{"so", "anyway"},
		},
		{
			name:   "final drops filler then partial",
			revise: final("moving on"),
			then:   partial("so any"),
			want:   []string{"so", "any"},
		},
		{
			name:   "partial shrinks then grows",
			revise: partial("moving on"),
			then:   partial("moving on so anyway"),
			want:   []string{"so", "anyway"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(0)
			w.Push(partial("uh well moving on"))
			view := w.View()
			w.Consume(view[len(view)-1].pos)

			w.Push(tt.revise)
			if got := w.Words(); len(got) != 0 {
				t.Fatalf("Words after revision = %q, want none", got)
			}
			w.Push(tt.then)
			if got := w.Words(); !slices.Equal(got, tt.want) {
				t.Errorf("Words = %q, want %q", got, tt.want)
			}
		})
	}
}
