package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dividi/internal/core"
	"dividi/internal/groups"
)

// Store keeps encoded group records in process memory.
type Store struct {
	mu      sync.Mutex
	records map[string][]byte
}

func New() *Store {
	return &Store{records: make(map[string][]byte)}
}

// NewFromDir seeds a store from record files named expenses_<id>.json in
// dir. A missing directory yields an empty store.
func NewFromDir(dir string) (*Store, error) {
	s := New()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id, ok := groups.IDFromKey(strings.TrimSuffix(name, ".json"))
		if !ok || id == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read seed %s: %w", name, err)
		}
		// Decode and balance once so a bad seed fails startup instead of
		// every later read of the group.
		g, err := groups.Decode(id, data)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
		if _, err := core.ComputeBalances(g.Roster, g.Expenses); err != nil {
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
		s.records[groups.Key(id)] = data
	}
	return s, nil
}

// Load implements groups.Store.
func (s *Store) Load(_ context.Context, id string) (core.GroupState, error) {
	s.mu.Lock()
	data, ok := s.records[groups.Key(id)]
	s.mu.Unlock()
	if !ok {
		return core.GroupState{}, groups.ErrGroupNotFound
	}
	return groups.Decode(id, data)
}

// Save implements groups.Store.
func (s *Store) Save(_ context.Context, g core.GroupState) error {
	data, err := groups.Encode(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[groups.Key(g.ID)] = data
	return nil
}

// Len returns the number of stored groups.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
