package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/athapong/canvas-mcp/pkg/graph"
	"github.com/pkg/errors"
)

// GraphStore persists component graphs. JSONGraphStore and Neo4jStore
// implement it.
type GraphStore interface {
	StoreGraph(ctx context.Context, g *graph.GraphData) error
	LoadGraph(ctx context.Context) (*graph.GraphData, error)
}

// JSONGraphStore keeps one graph in a JSON file.
type JSONGraphStore struct {
	filePath string
}

func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{filePath: filePath}
}

// StoreGraph writes g next to the target and renames it into place, so
// readers see either the old graph or the new one.
func (s *JSONGraphStore) StoreGraph(ctx context.Context, g *graph.GraphData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode graph")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to stage %s", s.filePath)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), s.filePath), "failed to replace %s", s.filePath)
}

// LoadGraph reads the graph back. A file whose edges point at components
// it does not contain is rejected.
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*graph.GraphData, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", s.filePath)
	}

	var g graph.GraphData
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", s.filePath)
	}

	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = true
	}
	for _, e := range g.Edges {
		if !known[e.Source] || !known[e.Target] {
			return nil, errors.Errorf("%s: edge %s references an unknown component", s.filePath, e.ID)
		}
	}
	return &g, nil
}
