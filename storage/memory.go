package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Resized/todo-list/domain"
)

// Memory is a process-local task store used when no table storage is
// configured and in tests.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
	now   func() time.Time
	newID func() string
}

func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[string]domain.Task),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (m *Memory) List(ctx context.Context) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, content string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := domain.Task{
		ID:        m.newID(),
		Content:   content,
		CreatedAt: domain.NewTimestamp(m.now()),
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	t = patch.Apply(t)
	m.tasks[id] = t
	return t, nil
}

func (m *Memory) Delete(ctx context.Context, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	delete(m.tasks, id)
	return t, nil
}
