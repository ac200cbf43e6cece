package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"driftwatch/internal/metrics"
)

// FileSink appends one JSON object per run to an NDJSON history file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

type fileEntry struct {
	Repository string             `json:"repository"`
	Timestamp  time.Time          `json:"timestamp"`
	Metrics    map[string]float64 `json:"metrics"`
}

func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Ship(_ context.Context, r metrics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	entry := fileEntry{Repository: r.Repository, Timestamp: r.Timestamp.UTC(), Metrics: map[string]float64{}}
	for _, sample := range r.Samples() {
		entry.Metrics[sample.Metric.Name()] = sample.Value
	}
	err = json.NewEncoder(f).Encode(entry)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
