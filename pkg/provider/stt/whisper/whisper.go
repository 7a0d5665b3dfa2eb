// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It talks to a running whisper-server binary (POST /inference) and simulates
// streaming by buffering incoming PCM, cutting utterances at silence, and
// submitting each utterance as a batch inference request. whisper.cpp cannot
// produce partials, so each utterance yields a single final transcript.
//
// This is the offline recognizer for rehearsals without network access:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilenceThresholdMs(400),
//	)
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	for t := range handle.Results() { ... }
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/provider/stt"
)

const (
	// defaultSilenceRMS is the normalised RMS level below which audio is
	// treated as silence.
	defaultSilenceRMS = 0.01

	// maxConsecutiveFailures ends the stream when the server keeps failing.
	maxConsecutiveFailures = 3

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. When empty the
// server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the default sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		p.silenceThresholdMs = ms
	}
}

// WithMaxBufferDurationMs caps how much speech accumulates before a flush is
// forced. Defaults to 10 s.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		p.maxBufferDurationMs = ms
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           serverURL,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a new transcription session. No connection is made until
// the first utterance is flushed, so the only failure is a cancelled ctx.
// Keywords are ignored; whisper.cpp has no boosting API.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if format.SampleRate <= 0 {
		format.SampleRate = p.sampleRate
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	s := &session{
		serverURL:  p.serverURL,
		model:      p.model,
		language:   lang,
		format:     format,
		silence:    time.Duration(p.silenceThresholdMs) * time.Millisecond,
		maxBuffer:  format.FrameBytes(time.Duration(p.maxBufferDurationMs) * time.Millisecond),
		httpClient: p.httpClient,

		audioCh: make(chan []byte, 256),
		results: make(chan stt.Transcript, 64),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(context.WithoutCancel(ctx))

	return s, nil
}

// ---- session ----------------------------------------------------------------

// session is a live whisper transcription session. Buffer state is confined
// to the processLoop goroutine.
type session struct {
	serverURL  string
	model      string
	language   string
	format     audio.Format
	silence    time.Duration
	maxBuffer  int
	httpClient *http.Client

	audioCh chan []byte
	results chan stt.Transcript

	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues a chunk of 16-bit PCM. Calling SendAudio after Close
// returns stt.ErrClosed.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrClosed
	case <-s.exited:
		return fmt.Errorf("whisper: stream ended: %w", s.Err())
	}
}

// Results returns the channel of final transcripts.
func (s *session) Results() <-chan stt.Transcript { return s.results }

// Err returns the inference error that ended the stream, if any.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close flushes pending speech for a last transcription and closes Results.
// Calling Close more than once is safe and returns nil.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// utterance accumulates PCM between silences.
type utterance struct {
	pcm       []byte
	start     time.Duration
	hadSpeech bool
	silence   time.Duration
}

func (u *utterance) reset() { *u = utterance{} }

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.exited)
	defer close(s.results)

	var (
		cur      utterance
		offset   time.Duration
		failures int
	)

	flush := func(ctx context.Context) bool {
		if !cur.hadSpeech {
			cur.reset()
			return true
		}
		pcm, start := cur.pcm, cur.start
		cur.reset()

		text, err := s.infer(ctx, pcm)
		if err != nil {
			failures++
			if failures >= maxConsecutiveFailures {
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
				return false
			}
			return true
		}
		failures = 0
		if text == "" {
			return true
		}
		select {
		case s.results <- stt.Transcript{
			Text:      text,
			IsFinal:   true,
			Timestamp: start,
			Duration:  s.format.Duration(len(pcm)),
		}:
		default:
		}
		return true
	}

	finalFlush := func() {
		fc, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-s.done:
			finalFlush()
			return

		case chunk := <-s.audioCh:
			d := s.format.Duration(len(chunk))
			at := offset
			offset += d

			if audio.RMS(chunk) < defaultSilenceRMS {
				// Leading silence before any speech is discarded.
				if !cur.hadSpeech {
					continue
				}
				cur.silence += d
				cur.pcm = append(cur.pcm, chunk...)
				if cur.silence >= s.silence && !flush(ctx) {
					return
				}
				continue
			}

			if !cur.hadSpeech {
				cur.start = at
			}
			cur.hadSpeech = true
			cur.silence = 0
			cur.pcm = append(cur.pcm, chunk...)
			if s.maxBuffer > 0 && len(cur.pcm) >= s.maxBuffer && !flush(ctx) {
				return
			}
		}
	}
}

// infer uploads pcm as a WAV file to the /inference endpoint and returns the
// transcribed text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, s.format)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("whisper: %w (HTTP %d)", stt.ErrUnauthorized, resp.StatusCode)
	default:
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return string(bytes.TrimSpace([]byte(result.Text))), nil
}
