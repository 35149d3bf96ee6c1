package api

import (
	"context"

	"github.com/Resized/todo-list/broadcast"
	"github.com/Resized/todo-list/domain"
)

// TaskService is the mutation and query surface the handlers drive.
type TaskService interface {
	List(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, originator, content string) (domain.Task, error)
	Update(ctx context.Context, originator, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, originator, id string) (domain.Task, error)
}

// Registry tracks open event streams.
type Registry interface {
	Register(ch *broadcast.Channel) string
	Unregister(id string) bool
	Len() int
}
