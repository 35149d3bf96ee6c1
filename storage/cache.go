package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Resized/todo-list/domain"
)

const (
	generationKey  = "tasks:gen"
	listKeyPrefix  = "tasks:list:"
	DefaultListTTL = 30 * time.Second
)

type backend interface {
	List(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, content string) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) (domain.Task, error)
}

// Cache wraps a task store with a Redis-backed copy of the full list.
// Every successful mutation bumps a generation counter so a list read that
// raced a write is stored under a key nobody will ask for again.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context) ([]domain.Task, error) {
	gen, ok := c.generation(ctx)
	if ok {
		if tasks, hit := c.load(ctx, gen); hit {
			return tasks, nil
		}
	}

	tasks, err := c.base.List(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) Create(ctx context.Context, content string) (domain.Task, error) {
	task, err := c.base.Create(ctx, content)
	if err != nil {
		return domain.Task{}, err
	}
	c.bump(ctx)
	return task, nil
}

func (c *Cache) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	task, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.bump(ctx)
	return task, nil
}

func (c *Cache) Delete(ctx context.Context, id string) (domain.Task, error) {
	task, err := c.base.Delete(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.bump(ctx)
	return task, nil
}

func (c *Cache) generation(ctx context.Context) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	if err != nil {
		return "", false
	}
	return gen, true
}

func (c *Cache) load(ctx context.Context, gen string) ([]domain.Task, bool) {
	data, err := c.redis.Get(ctx, listCacheKey(gen)).Bytes()
	if err != nil {
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, listCacheKey(gen)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, gen string, tasks []domain.Task) {
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, listCacheKey(gen), data, c.ttl).Err()
}

func (c *Cache) bump(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, generationKey).Err()
}

func listCacheKey(gen string) string {
	return listKeyPrefix + gen
}
