package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"cipher-scan/internal/features"
)

// sidecarMetadata is the optional JSON file written next to a pickled model.
// Pickles carry no feature order or label names of their own, so this is the
// only way to check them at load.
type sidecarMetadata struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	Features  []string  `json:"features"`
	Labels    []string  `json:"labels"`
}

// loadSidecarMetadata looks for <model>.meta.json, then model_metadata.json,
// then the newest model_metadata_*.json in the model's directory. A missing
// sidecar is not an error; an unreadable one is.
func loadSidecarMetadata(modelPath string) (sidecarMetadata, bool, error) {
	dir := filepath.Dir(modelPath)
	candidates := []string{
		strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".meta.json",
		filepath.Join(dir, "model_metadata.json"),
	}

	// Fallback: pick the newest metadata file by timestamp suffix
	if matches, err := filepath.Glob(filepath.Join(dir, "model_metadata_*.json")); err == nil && len(matches) > 0 {
		sort.Strings(matches)
		candidates = append(candidates, matches[len(matches)-1])
	}

	for _, path := range candidates {
		md, err := decodeMetadata(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return sidecarMetadata{}, false, fmt.Errorf("model metadata %s: %w", path, err)
		}
		return md, true, nil
	}
	return sidecarMetadata{}, false, nil
}

func decodeMetadata(path string) (sidecarMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return sidecarMetadata{}, err
	}
	defer file.Close()

	var md sidecarMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return sidecarMetadata{}, err
	}
	return md, nil
}

// apply merges the sidecar into meta, rejecting a feature order or label list
// that contradicts what the model itself reports.
func (md sidecarMetadata) apply(meta *ModelMetadata) error {
	if len(md.Features) > 0 && !slices.Equal(md.Features, features.Names()) {
		return fmt.Errorf("model metadata features %v do not match extractor order %v", md.Features, features.Names())
	}
	if len(md.Labels) > 0 {
		if len(md.Labels) != meta.Classes {
			return fmt.Errorf("model metadata lists %d labels for %d classes", len(md.Labels), meta.Classes)
		}
		if len(meta.Labels) > 0 && !slices.Equal(md.Labels, meta.Labels) {
			return fmt.Errorf("model metadata labels %v do not match model classes %v", md.Labels, meta.Labels)
		}
		meta.Labels = md.Labels
	}
	meta.Version = md.Version
	meta.TrainedAt = md.TrainedAt
	return nil
}
