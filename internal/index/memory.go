package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NewMemoryStore returns a Store backed by process memory. All lookups key on
// the artifact filename, which is unique across the store.
func NewMemoryStore() Store {
	return &memoryStore{
		byFilename: make(map[string]*Package),
	}
}

type memoryStore struct {
	mu         sync.RWMutex
	byFilename map[string]*Package
}

func (s *memoryStore) All(_ context.Context, name string) ([]*Package, error) {
	normalized := NormalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Package
	for _, pkg := range s.byFilename {
		if pkg.Name == normalized {
			result = append(result, pkg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Filename < result[j].Filename
	})
	return result, nil
}

func (s *memoryStore) Fetch(_ context.Context, filename string) (*Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byFilename[filename], nil
}

func (s *memoryStore) Distinct(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, pkg := range s.byFilename {
		seen[pkg.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) Save(_ context.Context, pkg *Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byFilename[pkg.Filename]; exists {
		return fmt.Errorf("%s: %w", pkg.Filename, ErrDuplicate)
	}
	s.byFilename[pkg.Filename] = pkg
	return nil
}

func (s *memoryStore) Delete(_ context.Context, pkg *Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byFilename[pkg.Filename]; !exists {
		return fmt.Errorf("delete %s: not found", pkg.Filename)
	}
	delete(s.byFilename, pkg.Filename)
	return nil
}
