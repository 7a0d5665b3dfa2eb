package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSetlist = `
title: Friday Late Set
materials:
  airport: |
    Airports are just malls with anxiety.
blocks:
  - id: opener
    text: Good evening everybody. So anyway, here we are.
  - id: airport
    material: airport
  - text: Moving on, tip your waitress.
phrases:
  - block: opener
    role: exit
    text: so anyway
  - block: airport
    role: anchor
    text: malls with anxiety
    enabled: false
`

func TestDecodeSetlist(t *testing.T) {
	sl, err := DecodeSetlist(strings.NewReader(sampleSetlist))
	if err != nil {
		t.Fatalf("DecodeSetlist: %v", err)
	}
	if sl.Script.Title != "Friday Late Set" {
		t.Errorf("Title = %q", sl.Script.Title)
	}
	if len(sl.Script.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(sl.Script.Blocks))
	}
	if b := sl.Script.Blocks[1]; b.Kind != KindMaterial || b.MaterialRef != "airport" {
		t.Errorf("blocks[1] = %+v", b)
	}
	if id := sl.Script.Blocks[2].ID; id != "block-2" {
		t.Errorf("default block id = %q, want block-2", id)
	}
	if len(sl.Phrases) != 2 {
		t.Fatalf("phrases = %d, want 2", len(sl.Phrases))
	}
	if !sl.Phrases[0].Enabled || sl.Phrases[1].Enabled {
		t.Errorf("enabled flags = %v, %v", sl.Phrases[0].Enabled, sl.Phrases[1].Enabled)
	}

	units, err := NewSegmenter(ModeWholeBlock, WithResolver(sl.Materials)).Segment(sl.Script)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(units) != 3 {
		t.Errorf("units = %d, want 3", len(units))
	}
}

func TestDecodeSetlist_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing title", "blocks:\n  - text: hi there\n", "title is required"},
		{"unknown field", "title: x\ncolour: red\n", "colour"},
		{"both text and material", "title: x\nmaterials: {a: b}\nblocks:\n  - text: hi\n    material: a\n", "mutually exclusive"},
		{"undefined material", "title: x\nblocks:\n  - material: nope\n", "not defined"},
		{"duplicate id", "title: x\nblocks:\n  - id: a\n    text: one\n  - id: a\n    text: two\n", "duplicate"},
		{"bad role", "title: x\nblocks:\n  - id: a\n    text: one\nphrases:\n  - block: a\n    role: jump\n    text: go go\n", "unknown phrase role"},
		{"unknown block", "title: x\nblocks:\n  - id: a\n    text: one\nphrases:\n  - block: b\n    role: exit\n    text: go go\n", "does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSetlist(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadSetlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.yaml")
	if err := os.WriteFile(path, []byte(sampleSetlist), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSetlist(path); err != nil {
		t.Fatalf("LoadSetlist: %v", err)
	}
	if _, err := LoadSetlist(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
