package cache

import (
	"context"
	"log/slog"
	"time"

	"dividi/internal/core"
	"dividi/internal/groups"
)

// Store is a write-through cache in front of a groups.Store.
// Cached states are cloned on the way in and out so callers never share slices.
type Store struct {
	next  groups.Store
	cache Cache[core.GroupState]
}

var _ groups.Store = (*Store)(nil)

func NewStore(next groups.Store, size int, ttl time.Duration) (*Store, *LRUCache[core.GroupState]) {
	lru := NewLRUCache[core.GroupState](size, ttl)
	return &Store{next: next, cache: lru}, lru
}

func (s *Store) Load(ctx context.Context, id string) (core.GroupState, error) {
	if g, ok := s.cache.Get(id); ok {
		slog.DebugContext(ctx, "Group cache hit", "group_id", id)
		return g.Clone(), nil
	}

	g, err := s.next.Load(ctx, id)
	if err != nil {
		return core.GroupState{}, err
	}
	s.cache.Set(id, g.Clone())
	return g, nil
}

// Save persists first; on failure the cached entry is dropped so the next
// Load re-reads the backing store.
func (s *Store) Save(ctx context.Context, g core.GroupState) error {
	if err := s.next.Save(ctx, g); err != nil {
		s.cache.Delete(g.ID)
		return err
	}
	s.cache.Set(g.ID, g.Clone())
	return nil
}
