package client

import (
	"sync"

	"github.com/Resized/todo-list/domain"
)

// Filter selects which tasks Visible returns.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterDone    Filter = "done"
	FilterPending Filter = "pending"
)

// Valid reports whether f is one of the known filters.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterDone, FilterPending:
		return true
	}
	return false
}

// Store is the normalized local copy of the task list: tasks keyed by id plus
// the request flags a view needs. Selectors always compute from the current
// map. After Close every update is ignored.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]domain.Task
	filter   Filter
	fetching bool
	adding   bool
	updating map[string]struct{}
	deleting map[string]struct{}
	lastErr  error
	version  uint64
	closed   bool

	subs    map[int]func()
	nextSub int
}

func NewStore() *Store {
	return &Store{
		tasks:    make(map[string]domain.Task),
		filter:   FilterAll,
		updating: make(map[string]struct{}),
		deleting: make(map[string]struct{}),
		subs:     make(map[int]func()),
	}
}

// Subscribe registers fn to run after every change. The returned function
// removes it.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close tears the store down. Results that arrive later are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[int]func())
	s.mu.Unlock()
}

func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// update runs fn under the write lock and notifies subscribers when fn
// reports a change.
func (s *Store) update(fn func() bool) bool {
	s.mu.Lock()
	if s.closed || !fn() {
		s.mu.Unlock()
		return false
	}
	s.version++
	subs := make([]func(), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub()
	}
	return true
}

// SetAll replaces the whole collection.
func (s *Store) SetAll(tasks []domain.Task) bool {
	return s.update(func() bool {
		next := make(map[string]domain.Task, len(tasks))
		for _, t := range tasks {
			next[t.ID] = t
		}
		if sameTasks(s.tasks, next) {
			return false
		}
		s.tasks = next
		return true
	})
}

// UpsertOne inserts or replaces a task. Applying an identical record is not a
// change.
func (s *Store) UpsertOne(task domain.Task) bool {
	return s.update(func() bool {
		if cur, ok := s.tasks[task.ID]; ok && cur.Equal(task) {
			return false
		}
		s.tasks[task.ID] = task
		return true
	})
}

// RemoveOne deletes a task. Removing an unknown id is not a change.
func (s *Store) RemoveOne(id string) bool {
	return s.update(func() bool {
		if _, ok := s.tasks[id]; !ok {
			return false
		}
		delete(s.tasks, id)
		return true
	})
}

func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// All returns every task, newest first.
func (s *Store) All() []domain.Task {
	return s.selectTasks(FilterAll)
}

func (s *Store) DoneOnly() []domain.Task {
	return s.selectTasks(FilterDone)
}

func (s *Store) PendingOnly() []domain.Task {
	return s.selectTasks(FilterPending)
}

// Visible applies the active filter.
func (s *Store) Visible() []domain.Task {
	return s.selectTasks(s.Filter())
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *Store) selectTasks(f Filter) []domain.Task {
	s.mu.RLock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		switch {
		case f == FilterDone && !t.Done:
			continue
		case f == FilterPending && t.Done:
			continue
		}
		out = append(out, t)
	}
	s.mu.RUnlock()
	domain.SortNewestFirst(out)
	return out
}

func (s *Store) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetFilter changes the active filter. Unknown filters fall back to all.
func (s *Store) SetFilter(f Filter) {
	if !f.Valid() {
		f = FilterAll
	}
	s.update(func() bool {
		if s.filter == f {
			return false
		}
		s.filter = f
		return true
	})
}

func (s *Store) IsFetching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetching
}

func (s *Store) IsAdding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adding
}

// IsDeleting reports whether a delete of id is outstanding.
func (s *Store) IsDeleting(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deleting[id]
	return ok
}

// IsUpdating reports whether an update of id is outstanding.
func (s *Store) IsUpdating(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.updating[id]
	return ok
}

// LastError is the most recent failed fetch, cleared by the next success.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Version increases on every change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) setFetching(v bool) {
	s.update(func() bool {
		changed := s.fetching != v
		s.fetching = v
		return changed
	})
}

func (s *Store) setAdding(v bool) {
	s.update(func() bool {
		changed := s.adding != v
		s.adding = v
		return changed
	})
}

func (s *Store) setLastError(err error) {
	s.update(func() bool {
		changed := s.lastErr != nil || err != nil
		s.lastErr = err
		return changed
	})
}

func (s *Store) markUpdating(id string, on bool) {
	s.update(func() bool { return toggleMark(s.updating, id, on) })
}

func (s *Store) markDeleting(id string, on bool) {
	s.update(func() bool { return toggleMark(s.deleting, id, on) })
}

func toggleMark(set map[string]struct{}, id string, on bool) bool {
	_, present := set[id]
	if on == present {
		return false
	}
	if on {
		set[id] = struct{}{}
	} else {
		delete(set, id)
	}
	return true
}

func sameTasks(a, b map[string]domain.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for id, t := range a {
		o, ok := b[id]
		if !ok || !t.Equal(o) {
			return false
		}
	}
	return true
}
