package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/script"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cuecard.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognition.Language != "en-US" {
		t.Errorf("language = %q, want en-US", cfg.Recognition.Language)
	}
}

func TestLoad_Example(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "cuecard.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Recognition.STT.Name != "deepgram" || len(cfg.Recognition.Fallbacks) != 1 {
		t.Errorf("recognition = %+v", cfg.Recognition)
	}

	sl, err := script.LoadSetlist(filepath.Join("..", "..", "configs", "friday.example.yaml"))
	if err != nil {
		t.Fatalf("LoadSetlist example: %v", err)
	}
	if _, err := session.Prepare(cfg.SessionConfig(sl)); err != nil {
		t.Errorf("Prepare example: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("matching: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(bad)
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("Load(bad) = %v, want a parse error naming the file", err)
	}
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	sl := &script.Setlist{
		Script: script.Script{
			Title: "Friday late",
			Blocks: []script.Block{
				{ID: "opener", Text: "Good evening everybody thanks for coming out tonight so anyway here we are"},
				{ID: "airport", Kind: script.KindMaterial, MaterialRef: "airport"},
			},
		},
		Materials: script.Materials{"airport": "Airports are just malls with anxiety and a runway out back"},
		Phrases: []script.PhraseConfig{
			{Text: "so anyway here we are", Role: script.RoleExit, BlockID: "opener", Enabled: true},
		},
	}

	sc := cfg.SessionConfig(sl)
	if sc.Mode != cfg.Navigation.Mode || !sc.BackwardJumps {
		t.Errorf("navigation not carried over: %+v", sc)
	}
	if sc.ChunkMinWords != 6 || sc.ChunkMaxWords != 12 || sc.PhraseWords != 5 || sc.MinPhraseWords != 3 {
		t.Errorf("word counts = %d/%d/%d/%d", sc.ChunkMinWords, sc.ChunkMaxWords, sc.PhraseWords, sc.MinPhraseWords)
	}
	if sc.Sensitivity.Anchor != 0.65 || sc.Sensitivity.Exit != 0.8 || sc.WindowSize != 32 {
		t.Errorf("matching = %+v window %d", sc.Sensitivity, sc.WindowSize)
	}
	if sc.RecordingDir != "/var/lib/cuecard/takes" || sc.Insights.RushedWPM != 200 {
		t.Errorf("recording dir %q rushed %v", sc.RecordingDir, sc.Insights.RushedWPM)
	}

	plan, err := session.Prepare(sc)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan.ContentUnits() < 2 {
		t.Errorf("content units = %d, want both blocks segmented", plan.ContentUnits())
	}
}
