// Package checkpoint persists the orchestrator's step state between steps,
// so a session survives a process restart. The file store keeps one JSON
// file per thread under the state directory.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/yarlson/pilot/internal/session"
)

// Store persists and restores step state per conversation thread.
type Store interface {
	// Save writes the step state for the given thread.
	Save(threadID string, st session.StepState) error

	// Load reads the step state for the given thread. Returns nil with no
	// error when no checkpoint exists.
	Load(threadID string) (*session.StepState, error)
}

// invalidFilenameChars matches characters unsafe in checkpoint filenames.
var invalidFilenameChars = regexp.MustCompile(`[/\\:*?"<>|\s]`)

// FileStore is a Store writing one JSON file per thread.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the step state atomically: temp file, then rename.
func (s *FileStore) Save(threadID string, st session.StepState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal step state: %w", err)
	}

	path := s.path(threadID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// Load reads the step state for a thread, nil when absent.
func (s *FileStore) Load(threadID string) (*session.StepState, error) {
	data, err := os.ReadFile(s.path(threadID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var st session.StepState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint for thread %s: %w", threadID, err)
	}
	return &st, nil
}

func (s *FileStore) path(threadID string) string {
	safe := invalidFilenameChars.ReplaceAllString(threadID, "-")
	return filepath.Join(s.dir, safe+".json")
}
