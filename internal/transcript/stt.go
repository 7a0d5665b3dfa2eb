package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/phrase"
	"github.com/MrWong99/cuecard/pkg/provider/stt"
	"github.com/MrWong99/cuecard/pkg/script"
)

// MaxKeywords caps the number of recognition hints sent with a stream.
const MaxKeywords = 50

// DefaultKeywordBoost is the boost applied to trigger phrase hints.
const DefaultKeywordBoost = 2.0

// STTOption configures an [STTSource].
type STTOption func(*STTSource)

// WithLanguage sets the recognition language.
func WithLanguage(lang string) STTOption {
	return func(s *STTSource) { s.cfg.Language = lang }
}

// WithKeywords sets the recognition hints sent when the stream opens.
func WithKeywords(kw []stt.KeywordBoost) STTOption {
	return func(s *STTSource) { s.cfg.Keywords = kw }
}

// WithFormat sets the audio format sent to the provider. Frames in any other
// format are converted. Default: 16 kHz mono.
func WithFormat(f audio.Format) STTOption {
	return func(s *STTSource) { s.format = f }
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) STTOption {
	return func(s *STTSource) { s.now = now }
}

// STTSource adapts a streaming [stt.Provider] into a [Source]. Audio comes
// from a frame channel, usually a tap on the recorder so the recording and
// the recognizer hear the same frames.
type STTSource struct {
	provider stt.Provider
	frames   <-chan audio.Frame
	format   audio.Format
	cfg      stt.StreamConfig
	now      func() time.Time

	mu      sync.Mutex
	started bool
	handle  stt.SessionHandle
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stop    sync.Once
}

var _ Source = (*STTSource)(nil)

// NewSTTSource returns a source that streams frames to provider. A nil
// provider makes Start fail with [ErrUnavailable].
func NewSTTSource(provider stt.Provider, frames <-chan audio.Frame, opts ...STTOption) *STTSource {
	s := &STTSource{
		provider: provider,
		frames:   frames,
		format:   audio.Format{SampleRate: 16000, Channels: 1},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.cfg.SampleRate = s.format.SampleRate
	s.cfg.Channels = s.format.Channels
	return s
}

// Start opens the recognition stream. Credential failures map to
// [ErrPermissionDenied]; every other failure is returned wrapped as is.
func (s *STTSource) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true
	if s.provider == nil {
		return nil, fmt.Errorf("%w: no speech provider configured", ErrUnavailable)
	}

	handle, err := s.provider.StartStream(ctx, s.cfg)
	switch {
	case errors.Is(err, stt.ErrUnauthorized):
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case err != nil:
		return nil, fmt.Errorf("transcript: start stream: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.handle = handle
	out := make(chan Event, 32)
	s.wg.Add(2)
	go s.pump(ctx, handle)
	go s.forward(ctx, handle, out)

	slog.Info("recognition stream started", "keywords", len(s.cfg.Keywords), "format", s.format.String())
	return out, nil
}

// pump converts and sends audio until the frame channel closes.
func (s *STTSource) pump(ctx context.Context, handle stt.SessionHandle) {
	defer s.wg.Done()
	conv := audio.Converter{Target: s.format}
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.frames:
			if !ok {
				return
			}
			frame = conv.Convert(frame)
			if len(frame.Data) == 0 {
				continue
			}
			if err := handle.SendAudio(frame.Data); err != nil {
				if !errors.Is(err, stt.ErrClosed) {
					slog.Warn("recognition send failed", "err", err)
				}
				return
			}
		}
	}
}

// forward turns transcripts into events and reports a failed stream.
func (s *STTSource) forward(ctx context.Context, handle stt.SessionHandle, out chan<- Event) {
	defer s.wg.Done()
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-handle.Results():
			if !ok {
				if err := handle.Err(); err != nil {
					select {
					case out <- Event{At: s.now(), Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case out <- Event{Text: t.Text, Final: t.IsFinal, At: s.now()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Stop closes the stream and waits for its goroutines.
func (s *STTSource) Stop() error {
	var err error
	s.stop.Do(func() {
		s.mu.Lock()
		handle, cancel := s.handle, s.cancel
		s.mu.Unlock()
		if handle == nil {
			return
		}
		cancel()
		err = handle.Close()
		s.wg.Wait()
	})
	return err
}

// KeywordsFromPhrases returns recognition hints for the matchable phrases,
// deduplicated by normalized text and capped at [MaxKeywords]. Phrases keep
// their script order so the earliest material wins when the cap applies.
func KeywordsFromPhrases(phrases []script.TriggerPhrase, boost float64) []stt.KeywordBoost {
	seen := make(map[string]bool)
	var out []stt.KeywordBoost
	for _, p := range phrases {
		if !p.Matchable() {
			continue
		}
		key := phrase.Join(p.Tokens)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, stt.KeywordBoost{Keyword: key, Boost: boost})
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
