package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"planner/internal/config"
	"planner/internal/model"
)

// FileStore keeps the task list as a JSON array in a single file.
// Writes go through a temp file and rename, so readers never see a
// partially written list.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore at path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = "./var/tasks.json"
	}
	return &FileStore{path: path}
}

// Load returns the stored list, or an empty list if the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Task{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return []model.Task{}, nil
	}

	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return tasks, nil
}

func (s *FileStore) Save(ctx context.Context, tasks []model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return config.WriteFileAtomic(s.path, data, ".planner-tasks-*.tmp")
}

func (s *FileStore) Close() error { return nil }
