package taskstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Store is the single source of truth for pending resets. Every mutation
// rewrites the whole persisted blob before returning; a failed write leaves
// the in-memory state untouched. All methods are safe for concurrent use.
type Store struct {
	backend PersistentStore

	mu    sync.RWMutex
	tasks map[string][]Task
}

// New creates an empty Store writing to backend. Call Load to read prior state.
func New(backend PersistentStore) *Store {
	return &Store{
		backend: backend,
		tasks:   make(map[string][]Task),
	}
}

// Load replaces the in-memory state with the persisted one and returns a
// copy of it. Absent state loads as an empty mapping. Undecodable state
// returns a *CorruptStateError and leaves the store empty.
func (s *Store) Load(ctx context.Context) (map[string][]Task, error) {
	data, err := s.backend.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make(map[string][]Task)
	if len(data) > 0 {
		decoded, err := decode(data)
		if err != nil {
			s.mu.Lock()
			s.tasks = make(map[string][]Task)
			s.mu.Unlock()
			return nil, err
		}
		tasks = decoded
	}

	s.mu.Lock()
	s.tasks = tasks
	out := clone(tasks)
	s.mu.Unlock()
	return out, nil
}

// Insert adds a task unless one already exists for the pair. It reports
// whether a task was created.
func (s *Store) Insert(ctx context.Context, groupID, resourceID string, deadline time.Time) (bool, error) {
	if groupID == "" || resourceID == "" {
		return false, ErrInvalidTask
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.tasks[groupID], resourceID) >= 0 {
		return false, nil
	}

	next := clone(s.tasks)
	next[groupID] = append(next[groupID], Task{GroupID: groupID, ResourceID: resourceID, Deadline: deadline})
	if err := s.persist(ctx, "insert", next); err != nil {
		return false, err
	}
	s.tasks = next
	return true, nil
}

// Remove deletes the task for the pair if present. Removing an absent task
// is a no-op and writes nothing.
func (s *Store) Remove(ctx context.Context, groupID, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.tasks[groupID], resourceID)
	if i < 0 {
		return nil
	}

	next := clone(s.tasks)
	next[groupID] = slices.Delete(next[groupID], i, i+1)
	if len(next[groupID]) == 0 {
		delete(next, groupID)
	}
	if err := s.persist(ctx, "remove", next); err != nil {
		return err
	}
	s.tasks = next
	return nil
}

// Get returns the task for the pair.
func (s *Store) Get(groupID, resourceID string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.tasks[groupID]
	if i := indexOf(list, resourceID); i >= 0 {
		return list[i], true
	}
	return Task{}, false
}

// Snapshot returns every task ordered by deadline, then group, then resource.
func (s *Store) Snapshot() []Task {
	s.mu.RLock()
	var out []Task
	for _, list := range s.tasks {
		out = append(out, list...)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Task) int {
		if c := a.Deadline.Compare(b.Deadline); c != 0 {
			return c
		}
		if c := cmp.Compare(a.GroupID, b.GroupID); c != 0 {
			return c
		}
		return cmp.Compare(a.ResourceID, b.ResourceID)
	})
	return out
}

// Due returns the tasks whose deadline is at or before now.
func (s *Store) Due(now time.Time) []Task {
	var due []Task
	for _, t := range s.Snapshot() {
		if t.Deadline.After(now) {
			break
		}
		due = append(due, t)
	}
	return due
}

// Len returns the number of pending tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.tasks {
		n += len(list)
	}
	return n
}

// persist must be called with s.mu held so writes never interleave.
func (s *Store) persist(ctx context.Context, op string, tasks map[string][]Task) error {
	data, err := encode(tasks)
	if err != nil {
		return &PersistenceFailure{Op: op, Err: err}
	}
	if err := s.backend.WriteAll(ctx, data); err != nil {
		return &PersistenceFailure{Op: op, Err: err}
	}
	return nil
}

func indexOf(list []Task, resourceID string) int {
	return slices.IndexFunc(list, func(t Task) bool { return t.ResourceID == resourceID })
}

func clone(tasks map[string][]Task) map[string][]Task {
	out := maps.Clone(tasks)
	if out == nil {
		return make(map[string][]Task)
	}
	for k, v := range out {
		out[k] = slices.Clone(v)
	}
	return out
}
