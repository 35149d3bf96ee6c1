package domain

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// TaskStore is the durable record of tasks.
type TaskStore interface {
	List(ctx context.Context) ([]Task, error)
	Create(ctx context.Context, content string) (Task, error)
	Update(ctx context.Context, id string, patch TaskPatch) (Task, error)
	Delete(ctx context.Context, id string) (Task, error)
}

// Notifier fans a committed change out to every client except originator.
type Notifier interface {
	Publish(ev ChangeEvent, originator string)
}

// TaskService validates mutations, commits them to the store and publishes
// the resulting change.
type TaskService struct {
	st       TaskStore
	notifier Notifier
	logger   *log.Logger
}

// NewTaskService wires a service. notifier may be nil; a nil logger uses
// the standard logger.
func NewTaskService(st TaskStore, notifier Notifier, logger *log.Logger) TaskService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return TaskService{st: st, notifier: notifier, logger: logger}
}

// List returns every task, newest first.
func (s TaskService) List(ctx context.Context) ([]Task, error) {
	tasks, err := s.st.List(ctx)
	if err != nil {
		return nil, internal(err)
	}
	SortNewestFirst(tasks)
	return tasks, nil
}

func (s TaskService) Create(ctx context.Context, originator, content string) (Task, error) {
	content, err := ValidateContent(content)
	if err != nil {
		return Task{}, err
	}
	task, err := s.st.Create(ctx, content)
	if err != nil {
		return Task{}, internal(err)
	}
	s.publish(ChangeEvent{Kind: TaskCreated, Task: task}, originator)
	return task, nil
}

func (s TaskService) Update(ctx context.Context, originator, id string, patch TaskPatch) (Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return Task{}, err
	}
	task, err := s.st.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WithField("task", id).Debug("update for missing task")
			return Task{}, ErrNotFound
		}
		return Task{}, internal(err)
	}
	s.publish(ChangeEvent{Kind: TaskUpdated, Task: task}, originator)
	return task, nil
}

func (s TaskService) Delete(ctx context.Context, originator, id string) (Task, error) {
	task, err := s.st.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WithField("task", id).Debug("delete for missing task")
			return Task{}, ErrNotFound
		}
		return Task{}, internal(err)
	}
	s.publish(ChangeEvent{Kind: TaskRemoved, Task: task}, originator)
	return task, nil
}

func (s TaskService) publish(ev ChangeEvent, originator string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ev, originator)
}

func internal(err error) error {
	if errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
