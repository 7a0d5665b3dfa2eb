package recorder_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/recorder"
	"github.com/MrWong99/cuecard/pkg/audio"
	audiomock "github.com/MrWong99/cuecard/pkg/audio/mock"
	"github.com/MrWong99/cuecard/pkg/provider/vad"
	vadmock "github.com/MrWong99/cuecard/pkg/provider/vad/mock"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

// frames returns n 20 ms frames of silence at 16 kHz mono.
func frames(n int) []audio.Frame {
	out := make([]audio.Frame, n)
	for i := range out {
		out[i] = audio.Frame{Data: make([]byte, 640), Timestamp: time.Duration(i) * 20 * time.Millisecond}
	}
	return out
}

func drain(t *testing.T, ch <-chan recorder.LevelSample) []recorder.LevelSample {
	t.Helper()
	var got []recorder.LevelSample
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, s)
		case <-timeout:
			t.Fatal("level channel not closed")
		}
	}
}

// ── file names ───────────────────────────────────────────────────────────────

func TestFileName(t *testing.T) {
	start := time.Date(2026, 3, 14, 21, 5, 9, 0, time.Local)
	tests := []struct {
		title string
		want  string
	}{
		{"Friday Late Show", "Friday-Late-Show_20260314-210509.wav"},
		{"a/b\\c: d?", "a-b-c-d_20260314-210509.wav"},
		{"  ", "set_20260314-210509.wav"},
		{"Café Olé", "Café-Olé_20260314-210509.wav"},
		{"late_show *encore*", "late-show-encore_20260314-210509.wav"},
		{"_under__scored_", "under-scored_20260314-210509.wav"},
	}
	for _, tt := range tests {
		if got := recorder.FileName(tt.title, start); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestSanitizeTitle_Length(t *testing.T) {
	long := ""
	for range 30 {
		long += "ab "
	}
	got := recorder.SanitizeTitle(long)
	if n := len([]rune(got)); n > 50 {
		t.Errorf("len = %d, want ≤ 50", n)
	}
	if got[len(got)-1] == '-' {
		t.Errorf("trailing hyphen in %q", got)
	}
}

// ── recording ────────────────────────────────────────────────────────────────

func TestWAVRecorder_RecordsAndReportsLevels(t *testing.T) {
	src := &audiomock.Source{SourceFormat: mono16k, Frames: frames(10)}
	sess := &vadmock.Session{Events: []vad.VADEvent{
		{Type: vad.VADSilence},
		{Type: vad.VADSilence},
		{Type: vad.VADSilence},
		{Type: vad.VADSilence},
		{Type: vad.VADSilence},
		{Type: vad.VADSpeechStart},
		{Type: vad.VADSpeechContinue},
	}}
	rec := recorder.New(src, recorder.WithVAD(&vadmock.Engine{Session: sess}))
	tap := rec.Tap("stt", 16)

	path := filepath.Join(t.TempDir(), "sets", "take.wav")
	levels, err := rec.Start(context.Background(), path)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := drain(t, levels)
	if len(got) != 2 {
		t.Fatalf("got %d level samples, want 2: %+v", len(got), got)
	}
	if got[0].At != 100*time.Millisecond || got[0].Speech {
		t.Errorf("first sample = %+v, want silence at 100ms", got[0])
	}
	if got[1].At != 200*time.Millisecond || !got[1].Speech {
		t.Errorf("second sample = %+v, want speech at 200ms", got[1])
	}

	tapped := 0
	for range tap {
		tapped++
	}
	if tapped != 10 {
		t.Errorf("tap got %d frames, want 10", tapped)
	}

	info, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if info.Path != path || info.Duration != 200*time.Millisecond || info.Bytes != 44+6400 {
		t.Errorf("info = %+v", info)
	}
	again, err := rec.Stop()
	if err != nil || again != info {
		t.Errorf("second Stop = %+v, %v", again, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := audio.ReadWAVHeader(bytes.NewReader(data))
	if err != nil || f != mono16k {
		t.Errorf("header = %v, %v", f, err)
	}
	if _, _, closes := sess.Counts(); closes != 1 {
		t.Errorf("vad session closed %d times", closes)
	}
}

func TestWAVRecorder_PausedFramesAreDiscarded(t *testing.T) {
	src := &audiomock.Source{SourceFormat: mono16k, Frames: frames(5)}
	rec := recorder.New(src)
	rec.Pause()
	levels, err := rec.Start(context.Background(), filepath.Join(t.TempDir(), "take.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, levels); len(got) != 0 {
		t.Errorf("levels while paused: %+v", got)
	}
	info, err := rec.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if info.Duration != 0 || info.Bytes != 44 {
		t.Errorf("info = %+v, want empty recording", info)
	}
}

func TestWAVRecorder_StopBeforeStart(t *testing.T) {
	rec := recorder.New(&audiomock.Source{SourceFormat: mono16k})
	if _, err := rec.Stop(); !errors.Is(err, recorder.ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestWAVRecorder_SourceFailure(t *testing.T) {
	src := &audiomock.Source{SourceFormat: mono16k, OpenErr: audio.ErrNoInput}
	rec := recorder.New(src)
	tap := rec.Tap("stt", 1)
	path := filepath.Join(t.TempDir(), "take.wav")

	if _, err := rec.Start(context.Background(), path); !errors.Is(err, audio.ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
	if _, ok := <-tap; ok {
		t.Error("tap not closed after failed start")
	}
	if _, err := rec.Start(context.Background(), path); !errors.Is(err, recorder.ErrAlreadyStarted) {
		t.Errorf("restart err = %v", err)
	}
}

func TestWAVRecorder_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	rec := recorder.New(&audiomock.Source{SourceFormat: mono16k})
	_, err := rec.Start(context.Background(), filepath.Join(dir, "take.wav"))
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}
