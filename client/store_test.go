package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resized/todo-list/domain"
)

func task(id string, minute int, done bool) domain.Task {
	return domain.Task{
		ID:        id,
		Content:   "task " + id,
		Done:      done,
		CreatedAt: domain.NewTimestamp(time.Date(2024, 5, 1, 12, minute, 0, 0, time.UTC)),
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestStoreUpsertIdenticalIsNoop(t *testing.T) {
	s := NewStore()
	require.True(t, s.UpsertOne(task("t1", 0, false)))
	v := s.Version()

	assert.False(t, s.UpsertOne(task("t1", 0, false)))
	assert.Equal(t, v, s.Version())
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.UpsertOne(task("t1", 0, true)))
	assert.Greater(t, s.Version(), v)
}

func TestStoreRemoveAbsentIsNoop(t *testing.T) {
	s := NewStore()
	s.UpsertOne(task("t1", 0, false))
	v := s.Version()

	assert.False(t, s.RemoveOne("missing"))
	assert.Equal(t, v, s.Version())
	assert.True(t, s.RemoveOne("t1"))
	assert.False(t, s.RemoveOne("t1"))
	assert.Equal(t, 0, s.Len())
}

func TestStoreSelectorsOrderAndFilter(t *testing.T) {
	s := NewStore()
	s.SetAll([]domain.Task{
		task("a", 1, false),
		task("b", 3, true),
		task("c", 2, false),
		task("d", 3, false),
	})

	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(s.All()))
	assert.Equal(t, []string{"b"}, ids(s.DoneOnly()))
	assert.Equal(t, []string{"d", "c", "a"}, ids(s.PendingOnly()))

	assert.Equal(t, FilterAll, s.Filter())
	s.SetFilter(FilterPending)
	assert.Equal(t, []string{"d", "c", "a"}, ids(s.Visible()))
	s.SetFilter("archived")
	assert.Equal(t, FilterAll, s.Filter())

	// selectors reflect later changes without caching
	s.UpsertOne(task("a", 1, true))
	assert.Equal(t, []string{"b", "a"}, ids(s.DoneOnly()))
}

func TestStoreSetAllReplaces(t *testing.T) {
	s := NewStore()
	s.SetAll([]domain.Task{task("a", 1, false), task("b", 2, false)})
	v := s.Version()

	assert.False(t, s.SetAll([]domain.Task{task("b", 2, false), task("a", 1, false)}))
	assert.Equal(t, v, s.Version())

	assert.True(t, s.SetAll([]domain.Task{task("c", 3, false)}))
	assert.Equal(t, []string{"c"}, ids(s.All()))
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	s.UpsertOne(task("a", 1, false))
	s.UpsertOne(task("a", 1, false))
	assert.Equal(t, 1, calls)

	unsubscribe()
	s.RemoveOne("a")
	assert.Equal(t, 1, calls)
}

func TestStoreClosedIgnoresUpdates(t *testing.T) {
	s := NewStore()
	s.UpsertOne(task("a", 1, false))
	s.Close()

	assert.False(t, s.UpsertOne(task("b", 2, false)))
	assert.False(t, s.RemoveOne("a"))
	assert.False(t, s.SetAll(nil))
	assert.True(t, s.Closed())
	assert.Equal(t, []string{"a"}, ids(s.All()))
}

func TestStoreMarks(t *testing.T) {
	s := NewStore()
	s.markDeleting("a", true)
	s.markUpdating("b", true)
	assert.True(t, s.IsDeleting("a"))
	assert.False(t, s.IsDeleting("b"))
	assert.True(t, s.IsUpdating("b"))

	s.markDeleting("a", false)
	assert.False(t, s.IsDeleting("a"))
}

func TestStoreConcurrentUse(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := string(rune('a' + i))
				s.UpsertOne(task(id, j, j%2 == 0))
				_ = s.Visible()
				if j%10 == 0 {
					s.RemoveOne(id)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 8)
}
