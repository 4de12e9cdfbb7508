package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"visionchat/internal/common/fsutil"
)

// ErrModelNotFound is returned by Resolve when no GGUF file matches the id.
var ErrModelNotFound = errors.New("model not found")

// Model is a local GGUF checkpoint usable by the in-process backend.
type Model struct {
	// ID is the file name without the .gguf extension.
	ID   string
	Path string
}

// Scan lists *.gguf files in dir (case-insensitive extension), sorted by ID.
func Scan(dir string) ([]Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".gguf") {
			continue
		}
		models = append(models, Model{ID: strings.TrimSuffix(name, filepath.Ext(name)), Path: filepath.Join(abs, name)})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve maps a model identifier to a GGUF file. An id naming an existing
// file is used directly; otherwise dir is scanned for a file whose name
// matches id with or without extension. Hub-style ids ("org/name") match on
// their last path element.
func Resolve(dir, id string) (Model, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Model{}, fmt.Errorf("%w: empty id", ErrModelNotFound)
	}
	if p, err := fsutil.LocalPath(id); err == nil && fsutil.IsFile(p) {
		name := filepath.Base(p)
		return Model{ID: strings.TrimSuffix(name, filepath.Ext(name)), Path: p}, nil
	}
	if dir == "" {
		return Model{}, fmt.Errorf("%w: %s (no models dir configured)", ErrModelNotFound, id)
	}
	models, err := Scan(dir)
	if err != nil {
		return Model{}, err
	}
	want := id
	if i := strings.LastIndex(want, "/"); i >= 0 {
		want = want[i+1:]
	}
	if strings.EqualFold(filepath.Ext(want), ".gguf") {
		want = want[:len(want)-len(".gguf")]
	}
	for _, m := range models {
		if strings.EqualFold(m.ID, want) {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %s in %s", ErrModelNotFound, id, dir)
}
