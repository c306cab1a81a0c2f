package ml

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion is bumped whenever the artifact layout changes
// incompatibly. A mismatch on load triggers a retrain from defaults.
const SchemaVersion = 1

// artifact is the persisted model unit: the feature-name list and scaler
// that vectors were produced with, plus the standardized training matrix
// the ensemble was fit on. The ensemble itself is refit from the matrix
// on load, which takes milliseconds at this sample scale and avoids
// round-tripping tree internals through gob.
type artifact struct {
	SchemaVersion int
	FeatureNames  []string
	Scaler        *Scaler
	X             [][]float64
	Class         []int
}

// saveArtifact writes the artifact atomically: encode to a temp file in
// the same directory, then rename over the destination.
func saveArtifact(path string, art *artifact) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(art); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace model artifact: %w", err)
	}
	return nil
}

// loadArtifact reads and decodes an artifact from disk.
func loadArtifact(path string) (*artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var art artifact
	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if art.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("model artifact schema version %d, want %d", art.SchemaVersion, SchemaVersion)
	}
	if len(art.FeatureNames) == 0 || art.Scaler == nil || len(art.X) == 0 {
		return nil, fmt.Errorf("model artifact is incomplete")
	}
	return &art, nil
}
