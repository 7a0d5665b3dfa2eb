package script

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Setlist is a script together with its material library and configured
// phrases, as stored in a setlist file.
type Setlist struct {
	Script    Script
	Materials Materials
	Phrases   []PhraseConfig
}

// setlistFile is the YAML schema of a setlist file.
//
//	title: Friday late set
//	materials:
//	  airport: |
//	    Airports are just malls with anxiety.
//	blocks:
//	  - id: opener
//	    text: Good evening everybody, so anyway here we are.
//	  - id: airport
//	    material: airport
//	phrases:
//	  - block: opener
//	    role: exit
//	    text: so anyway
type setlistFile struct {
	Title     string            `yaml:"title"`
	Materials map[string]string `yaml:"materials"`
	Blocks    []blockEntry      `yaml:"blocks"`
	Phrases   []phraseEntry     `yaml:"phrases"`
}

type blockEntry struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Material string `yaml:"material"`
}

type phraseEntry struct {
	Block   string `yaml:"block"`
	Role    string `yaml:"role"`
	Text    string `yaml:"text"`
	Enabled *bool  `yaml:"enabled"`
}

// LoadSetlist reads and validates the setlist file at path.
func LoadSetlist(path string) (*Setlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	sl, err := DecodeSetlist(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return sl, nil
}

// DecodeSetlist decodes a setlist from YAML. Unknown fields are rejected.
func DecodeSetlist(r io.Reader) (*Setlist, error) {
	var raw setlistFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("script: decode yaml: %w", err)
	}

	var errs []error
	sl := &Setlist{
		Script:    Script{Title: raw.Title},
		Materials: Materials(raw.Materials),
	}
	if raw.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}

	seen := make(map[string]int, len(raw.Blocks))
	for i, b := range raw.Blocks {
		prefix := fmt.Sprintf("blocks[%d]", i)
		id := b.ID
		if id == "" {
			id = fmt.Sprintf("block-%d", i)
		}
		if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of blocks[%d]", prefix, id, prev))
		}
		seen[id] = i

		switch {
		case b.Text != "" && b.Material != "":
			errs = append(errs, fmt.Errorf("%s: text and material are mutually exclusive", prefix))
		case b.Material != "":
			if _, ok := raw.Materials[b.Material]; !ok {
				errs = append(errs, fmt.Errorf("%s.material %q is not defined under materials", prefix, b.Material))
			}
			sl.Script.Blocks = append(sl.Script.Blocks, Block{ID: id, Kind: KindMaterial, MaterialRef: b.Material})
		default:
			sl.Script.Blocks = append(sl.Script.Blocks, Block{ID: id, Kind: KindText, Text: b.Text})
		}
	}

	for i, p := range raw.Phrases {
		prefix := fmt.Sprintf("phrases[%d]", i)
		role, err := ParseRole(p.Role)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.role: %w", prefix, err))
			continue
		}
		if _, ok := seen[p.Block]; !ok {
			errs = append(errs, fmt.Errorf("%s.block %q does not exist", prefix, p.Block))
			continue
		}
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		sl.Phrases = append(sl.Phrases, PhraseConfig{
			Text:    p.Text,
			Role:    role,
			BlockID: p.Block,
			Enabled: enabled,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return sl, nil
}
