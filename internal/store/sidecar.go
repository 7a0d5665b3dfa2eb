package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/cuecard/internal/session"
)

// SidecarPath returns the path of the JSON file written next to recording.
func SidecarPath(recording string) string {
	return strings.TrimSuffix(recording, filepath.Ext(recording)) + ".json"
}

// WriteSidecar writes r as indented JSON next to its recording and returns
// the file's path. The file is replaced atomically.
func WriteSidecar(r *session.Result) (string, error) {
	if r.Path == "" {
		return "", fmt.Errorf("store: sidecar: result %s has no recording path", r.ID)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: sidecar: encode: %w", err)
	}
	path := SidecarPath(r.Path)
	if err := atomicWrite(path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("store: sidecar: %w", err)
	}
	return path, nil
}

// ReadSidecar reads a result written by [WriteSidecar].
func ReadSidecar(path string) (*session.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read sidecar: %w", err)
	}
	var r session.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("store: decode sidecar %s: %w", path, err)
	}
	return &r, nil
}

// Sidecar is a [session.ResultStore] that writes a JSON sidecar for every
// result and then hands it to Next, if set.
type Sidecar struct {
	Next session.ResultStore
}

// WithSidecar wraps next so results also land next to their recordings.
// next may be nil.
func WithSidecar(next session.ResultStore) *Sidecar {
	return &Sidecar{Next: next}
}

// SaveResult implements [session.ResultStore].
func (s *Sidecar) SaveResult(ctx context.Context, r *session.Result) error {
	if _, err := WriteSidecar(r); err != nil {
		return err
	}
	if s.Next == nil {
		return nil
	}
	return s.Next.SaveResult(ctx, r)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".cuecard-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
