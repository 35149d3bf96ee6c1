package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"github.com/Resized/todo-list/domain"
)

const (
	taskPartition     = "tasks"
	edmDateTime       = "Edm.DateTime"
	maxUpdateAttempts = 3
)

type tableClient interface {
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// Storage keeps tasks in an Azure Storage table.
type Storage struct {
	taskTable tableClient
	now       func() time.Time
	newID     func() string
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return newStorage(svc.NewClient(tasksTable)), nil
}

func newStorage(tc tableClient) *Storage {
	return &Storage{taskTable: tc, now: time.Now, newID: uuid.NewString}
}

// taskEntity is the table representation of a task. RowKey holds the task
// identifier and CreatedAt the creation instant.
type taskEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Content       string `json:"Content"`
	Done          bool   `json:"Done"`
	CreatedAt     string `json:"CreatedAt"`
	CreatedAtType string `json:"CreatedAt@odata.type,omitempty"`
}

type taskUpdate struct {
	PartitionKey string  `json:"PartitionKey"`
	RowKey       string  `json:"RowKey"`
	Content      *string `json:"Content,omitempty"`
	Done         *bool   `json:"Done,omitempty"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: bad CreatedAt %q: %w", ent.RowKey, ent.CreatedAt, err)
	}
	return domain.Task{
		ID:        ent.RowKey,
		Content:   ent.Content,
		Done:      ent.Done,
		CreatedAt: domain.NewTimestamp(created),
	}, nil
}

// List retrieves every task in the table.
func (s *Storage) List(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + taskPartition + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// Create inserts a new task with a generated identifier.
func (s *Storage) Create(ctx context.Context, content string) (domain.Task, error) {
	task := domain.Task{
		ID:        s.newID(),
		Content:   content,
		CreatedAt: domain.NewTimestamp(s.now()),
	}
	payload, err := json.Marshal(taskEntity{
		PartitionKey:  taskPartition,
		RowKey:        task.ID,
		Content:       task.Content,
		Done:          task.Done,
		CreatedAt:     task.CreatedAt.String(),
		CreatedAtType: edmDateTime,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Update merges patch into an existing task. Concurrent writers are
// detected through the entity ETag and the read-merge-write is retried.
func (s *Storage) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	payload, err := json.Marshal(taskUpdate{
		PartitionKey: taskPartition,
		RowKey:       id,
		Content:      patch.Content,
		Done:         patch.Done,
	})
	if err != nil {
		return domain.Task{}, err
	}
	for attempt := 1; ; attempt++ {
		current, etag, err := s.get(ctx, id)
		if err != nil {
			return domain.Task{}, err
		}
		_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge})
		switch {
		case err == nil:
			return patch.Apply(current), nil
		case hasStatus(err, http.StatusNotFound):
			return domain.Task{}, domain.ErrNotFound
		case hasStatus(err, http.StatusPreconditionFailed) && attempt < maxUpdateAttempts:
			continue
		default:
			return domain.Task{}, err
		}
	}
}

// Delete removes a task and returns its last state. A write that lands
// between the read and the delete changes the ETag; the row is then re-read
// so the returned state is the one actually removed.
func (s *Storage) Delete(ctx context.Context, id string) (domain.Task, error) {
	for attempt := 1; ; attempt++ {
		current, etag, err := s.get(ctx, id)
		if err != nil {
			return domain.Task{}, err
		}
		_, err = s.taskTable.DeleteEntity(ctx, taskPartition, id, &aztables.DeleteEntityOptions{IfMatch: &etag})
		switch {
		case err == nil:
			return current, nil
		case hasStatus(err, http.StatusNotFound):
			return domain.Task{}, domain.ErrNotFound
		case hasStatus(err, http.StatusPreconditionFailed) && attempt < maxUpdateAttempts:
			continue
		default:
			return domain.Task{}, err
		}
	}
}

func (s *Storage) get(ctx context.Context, id string) (domain.Task, azcore.ETag, error) {
	ent, err := s.taskTable.GetEntity(ctx, taskPartition, id, nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.Task{}, "", domain.ErrNotFound
		}
		return domain.Task{}, "", err
	}
	task, err := decodeTaskEntity(ent.Value)
	if err != nil {
		return domain.Task{}, "", err
	}
	return task, ent.ETag, nil
}

func hasStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
