package client

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/domain"
)

// ErrMutationPending rejects a mutation while the same kind of mutation on the
// same task is still in flight.
var ErrMutationPending = errors.New("mutation already pending")

// TaskAPI is the server surface the coordinator drives.
type TaskAPI interface {
	List(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, content string) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) (domain.Task, error)
}

// Op names a mutation kind.
type Op string

const (
	OpFetch  Op = "fetch"
	OpAdd    Op = "add"
	OpToggle Op = "toggle"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// OpState is the lifecycle of one mutation kind on one task.
type OpState int

const (
	StateIdle OpState = iota
	StatePending
	StateFailed
)

func (s OpState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	}
	return "idle"
}

// Notice is a transient message about a failed operation.
type Notice struct {
	Op      Op
	TaskID  string
	Message string
	Err     error
}

var noticeText = map[Op]string{
	OpFetch:  "Could not load tasks",
	OpAdd:    "Could not add task",
	OpToggle: "Could not update task",
	OpEdit:   "Could not edit task",
	OpDelete: "Could not delete task",
}

type opKey struct {
	id string
	op Op
}

// Coordinator applies local mutations to the Store and reconciles them with
// the server's answers.
type Coordinator struct {
	api      TaskAPI
	store    *Store
	logger   *log.Logger
	onNotice func(Notice)

	mu     sync.Mutex
	states map[opKey]OpState
	adding int
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithNoticeHandler receives a Notice for every failed operation.
func WithNoticeHandler(fn func(Notice)) CoordinatorOption {
	return func(c *Coordinator) { c.onNotice = fn }
}

// WithLogger replaces the standard logger.
func WithLogger(logger *log.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

func NewCoordinator(api TaskAPI, store *Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		api:    api,
		store:  store,
		logger: log.StandardLogger(),
		states: make(map[opKey]OpState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the state of op on task id.
func (c *Coordinator) State(id string, op Op) OpState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[opKey{id, op}]
}

func (c *Coordinator) begin(id string, op Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := opKey{id, op}
	if c.states[k] == StatePending {
		return ErrMutationPending
	}
	c.states[k] = StatePending
	return nil
}

func (c *Coordinator) finish(id string, op Op, err error) {
	c.mu.Lock()
	k := opKey{id, op}
	if err == nil {
		delete(c.states, k)
	} else {
		c.states[k] = StateFailed
	}
	c.mu.Unlock()
	if err != nil {
		c.notify(op, id, err)
	}
}

func (c *Coordinator) notify(op Op, id string, err error) {
	c.logger.WithError(err).WithFields(log.Fields{"op": op, "task": id}).Warn("task operation failed")
	if c.onNotice == nil || c.store.Closed() {
		return
	}
	c.onNotice(Notice{Op: op, TaskID: id, Message: noticeText[op], Err: err})
}

// Fetch replaces the store with the server's list. On failure the previous
// tasks stay and LastError is set; calling Fetch again retries.
func (c *Coordinator) Fetch(ctx context.Context) error {
	c.store.setFetching(true)
	tasks, err := c.api.List(ctx)
	if err != nil {
		c.store.setLastError(err)
		c.store.setFetching(false)
		c.notify(OpFetch, "", err)
		return err
	}
	c.store.SetAll(tasks)
	c.store.setLastError(nil)
	c.store.setFetching(false)
	return nil
}

// Add creates a task and inserts the server's record.
func (c *Coordinator) Add(ctx context.Context, content string) (domain.Task, error) {
	content, err := domain.ValidateContent(content)
	if err != nil {
		return domain.Task{}, err
	}
	c.setAdding(1)
	task, err := c.api.Create(ctx, content)
	c.setAdding(-1)
	if err != nil {
		c.notify(OpAdd, "", err)
		return domain.Task{}, err
	}
	c.store.UpsertOne(task)
	return task, nil
}

func (c *Coordinator) setAdding(delta int) {
	c.mu.Lock()
	c.adding += delta
	adding := c.adding > 0
	c.mu.Unlock()
	c.store.setAdding(adding)
}

// ToggleDone flips the done flag locally before asking the server. A failed
// request reverts the flag unless something else changed it meanwhile.
func (c *Coordinator) ToggleDone(ctx context.Context, id string) error {
	if err := c.begin(id, OpToggle); err != nil {
		return err
	}
	prior, ok := c.store.Get(id)
	if !ok {
		c.finish(id, OpToggle, nil)
		return domain.ErrNotFound
	}
	optimistic := prior
	optimistic.Done = !prior.Done
	c.store.UpsertOne(optimistic)
	c.store.markUpdating(id, true)

	updated, err := c.api.Update(ctx, id, domain.TaskPatch{Done: &optimistic.Done})
	c.store.markUpdating(id, false)
	if err != nil {
		if cur, ok := c.store.Get(id); ok && cur.Done == optimistic.Done {
			cur.Done = prior.Done
			c.store.UpsertOne(cur)
		}
		c.finish(id, OpToggle, err)
		return err
	}
	c.store.UpsertOne(updated)
	c.finish(id, OpToggle, nil)
	return nil
}

// Edit changes the content. The store only changes once the server
// confirms.
func (c *Coordinator) Edit(ctx context.Context, id, content string) error {
	content, err := domain.ValidateContent(content)
	if err != nil {
		return err
	}
	if err := c.begin(id, OpEdit); err != nil {
		return err
	}
	c.store.markUpdating(id, true)
	updated, err := c.api.Update(ctx, id, domain.TaskPatch{Content: &content})
	c.store.markUpdating(id, false)
	if err != nil {
		c.finish(id, OpEdit, err)
		return err
	}
	c.store.UpsertOne(updated)
	c.finish(id, OpEdit, nil)
	return nil
}

// Delete marks the task as deleting and removes it once the server
// confirms. On failure the task stays.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := c.begin(id, OpDelete); err != nil {
		return err
	}
	c.store.markDeleting(id, true)
	_, err := c.api.Delete(ctx, id)
	if err == nil {
		c.store.RemoveOne(id)
	}
	c.store.markDeleting(id, false)
	c.finish(id, OpDelete, err)
	if err != nil {
		return err
	}
	return nil
}
