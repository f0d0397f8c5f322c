package store

import (
	"context"
	"fmt"
	"sync"

	"planner/internal/config"
	"planner/internal/model"
)

// Store persists the whole task list. Save always replaces the full list;
// there is no per-task update.
type Store interface {
	Load(ctx context.Context) ([]model.Task, error)
	Save(ctx context.Context, tasks []model.Task) error
	Close() error
}

// Open builds the Store selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Path), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Memory keeps the task list in process memory.
type Memory struct {
	mu    sync.RWMutex
	tasks []model.Task
}

// NewMemory returns a Memory store seeded with a copy of tasks.
func NewMemory(tasks []model.Task) *Memory {
	return &Memory{tasks: model.CloneTasks(tasks)}
}

func (m *Memory) Load(_ context.Context) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.CloneTasks(m.tasks), nil
}

func (m *Memory) Save(_ context.Context, tasks []model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = model.CloneTasks(tasks)
	return nil
}

func (m *Memory) Close() error { return nil }
