package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"loom/internal/logging"
)

// FileStore persists one JSON file per checkpoint under
// <baseDir>/<runID>/<index>.json. Files are written exclusively so a crashed
// writer never leaves a silently truncated latest record behind a retry.
type FileStore struct {
	baseDir string
	logger  logging.Logger
	mu      sync.Mutex
	next    map[string]int
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string, logger logging.Logger) (*FileStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logging.OrNop(logger),
		next:    make(map[string]int),
	}, nil
}

func (s *FileStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runDir := filepath.Join(s.baseDir, record.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	index, err := s.nextIndex(record.RunID, runDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	path := filepath.Join(runDir, fmt.Sprintf("%06d.json", index))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	s.next[record.RunID] = index + 1
	s.logger.Debug("Saved checkpoint %s for run %s (node=%s)", filepath.Base(path), record.RunID, record.LastCompletedNode)
	return nil
}

// nextIndex continues numbering from existing files so resumed processes
// never collide with earlier checkpoints.
func (s *FileStore) nextIndex(runID, runDir string) (int, error) {
	if index, ok := s.next[runID]; ok {
		return index, nil
	}
	files, err := s.listFiles(runDir)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (s *FileStore) Latest(ctx context.Context, runID string) (*Record, error) {
	records, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (s *FileStore) List(_ context.Context, runID string) ([]Record, error) {
	runDir := filepath.Join(s.baseDir, runID)
	files, err := s.listFiles(runDir)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *FileStore) listFiles(runDir string) ([]string, error) {
	entries, err := os.ReadDir(runDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(runDir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
