package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/domain"
)

const (
	DefaultJournalWorkers = 4
	DefaultJournalBuffer  = 1024
	journalSendTimeout    = 30 * time.Second
	journalHandoffTimeout = 15 * time.Millisecond
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// NewQueueClient connects to the change queue.
func NewQueueClient(connStr, queue string) (*azqueue.QueueClient, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, queue, &queueClientOptions)
}

// JournalEntry is the queue message written for every committed change.
type JournalEntry struct {
	Kind       domain.EventKind `json:"kind"`
	Task       domain.Task      `json:"task"`
	RecordedAt string           `json:"recordedAt"`
}

// Journal forwards committed changes to an Azure queue so downstream
// consumers can follow the task list. Writes happen on a worker pool; a
// failed or dropped write is logged and never fails the mutation.
type Journal struct {
	base    backend
	queue   queueClient
	log     *log.Logger
	now     func() time.Time
	handoff time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan JournalEntry
	wg     sync.WaitGroup
}

// NewJournal starts workers goroutines draining a buffer of the given size.
func NewJournal(base backend, queue queueClient, workers, buffer int, logger *log.Logger) *Journal {
	if base == nil {
		panic("storage.NewJournal: base storage is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if workers <= 0 {
		workers = DefaultJournalWorkers
	}
	if buffer < 0 {
		buffer = 0
	}
	j := &Journal{
		base:    base,
		queue:   queue,
		log:     logger,
		now:     time.Now,
		handoff: journalHandoffTimeout,
		jobs:    make(chan JournalEntry, buffer),
	}
	for i := 0; i < workers; i++ {
		j.wg.Add(1)
		go j.worker(i)
	}
	logger.Infof("change journal started, workers: %d, buffer: %d", workers, buffer)
	return j
}

func (j *Journal) List(ctx context.Context) ([]domain.Task, error) {
	return j.base.List(ctx)
}

func (j *Journal) Create(ctx context.Context, content string) (domain.Task, error) {
	task, err := j.base.Create(ctx, content)
	if err == nil {
		j.record(domain.TaskCreated, task)
	}
	return task, err
}

func (j *Journal) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	task, err := j.base.Update(ctx, id, patch)
	if err == nil {
		j.record(domain.TaskUpdated, task)
	}
	return task, err
}

func (j *Journal) Delete(ctx context.Context, id string) (domain.Task, error) {
	task, err := j.base.Delete(ctx, id)
	if err == nil {
		j.record(domain.TaskRemoved, task)
	}
	return task, err
}

// Close stops accepting entries and waits for queued ones to be written.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.jobs)
	}
	j.mu.Unlock()
	j.wg.Wait()
}

func (j *Journal) record(kind domain.EventKind, task domain.Task) {
	entry := JournalEntry{Kind: kind, Task: task, RecordedAt: domain.NewTimestamp(j.now()).String()}
	if !j.tryHandoff(entry) {
		j.log.WithFields(log.Fields{"kind": kind, "task": task.ID}).Warn("change journal full, entry dropped")
	}
}

func (j *Journal) tryHandoff(entry JournalEntry) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return false
	}
	select {
	case j.jobs <- entry:
		return true
	default:
	}
	if j.handoff <= 0 {
		return false
	}
	timer := time.NewTimer(j.handoff)
	defer timer.Stop()
	select {
	case j.jobs <- entry:
		return true
	case <-timer.C:
		return false
	}
}

func (j *Journal) worker(id int) {
	defer j.wg.Done()
	for entry := range j.jobs {
		data, err := json.Marshal(entry)
		if err != nil {
			j.log.Errorf("journal encode failed, err: %v, task: %s", err, entry.Task.ID)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), journalSendTimeout)
		_, err = j.queue.EnqueueMessage(ctx, string(data), nil)
		cancel()
		if err != nil {
			j.log.Errorf("journal enqueue failed, err: %v, task: %s, kind: %s, worker: %d", err, entry.Task.ID, entry.Kind, id)
		}
	}
}
