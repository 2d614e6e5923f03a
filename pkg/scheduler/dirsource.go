package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
)

// DirSource offers JSON files laid out as <root>/<dataType>/<name>.json.
// Archived records are removed from the file; a fully archived file is
// deleted.
type DirSource struct {
	Root string
}

func (d DirSource) Candidates(ctx context.Context) ([]Candidate, error) {
	paths, err := filepath.Glob(filepath.Join(d.Root, "*", "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]Candidate, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, Candidate{
			Name:     path,
			DataType: filepath.Base(filepath.Dir(path)),
			Data:     data,
		})
	}
	return out, nil
}

func (d DirSource) Archived(_ context.Context, c Candidate, keep any, _ string) error {
	if keep == nil {
		return os.Remove(c.Name)
	}
	raw, err := json.Marshal(keep)
	if err != nil {
		return err
	}
	tmp := c.Name + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.Name)
}
