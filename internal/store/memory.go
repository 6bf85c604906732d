package store

import (
	"context"
	"slices"
	"sync"

	"github.com/maauso/recitation-api/internal/unit"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with RWMutex for thread-safe access. Nothing survives
// process exit; use it for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	units map[string]unit.AudioUnit
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units: make(map[string]unit.AudioUnit),
	}
}

// Put upserts a copy of u.
func (s *MemoryStore) Put(_ context.Context, u unit.AudioUnit) error {
	key, err := unit.Key(u.GroupID, u.UnitIndex)
	if err != nil {
		return storageErr("put", u.Key, err)
	}
	u.Key = key
	u.Data = slices.Clone(u.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[key] = u
	return nil
}

// Get returns a copy of the stored payload, or nil if absent.
func (s *MemoryStore) Get(_ context.Context, groupID, unitIndex int) ([]byte, error) {
	key, err := unit.Key(groupID, unitIndex)
	if err != nil {
		return nil, storageErr("get", "", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(u.Data), nil
}

// ListGroups returns distinct stored group IDs, ascending.
func (s *MemoryStore) ListGroups(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]struct{})
	groups := make([]int, 0)
	for _, u := range s.units {
		if _, ok := seen[u.GroupID]; ok {
			continue
		}
		seen[u.GroupID] = struct{}{}
		groups = append(groups, u.GroupID)
	}
	slices.Sort(groups)
	return groups, nil
}

// ListUnitIndices returns the stored indices of a group, ascending.
func (s *MemoryStore) ListUnitIndices(_ context.Context, groupID int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indices := make([]int, 0)
	for _, u := range s.units {
		if u.GroupID == groupID {
			indices = append(indices, u.UnitIndex)
		}
	}
	slices.Sort(indices)
	return indices, nil
}

// DeleteGroup removes every unit of a group.
func (s *MemoryStore) DeleteGroup(_ context.Context, groupID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, u := range s.units {
		if u.GroupID == groupID {
			delete(s.units, key)
		}
	}
	return nil
}

// ClearAll removes every unit.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.units)
	return nil
}

// Count returns the number of stored units.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
