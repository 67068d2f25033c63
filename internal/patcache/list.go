package patcache

import (
	"fmt"
	"slices"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/thebinarysearchtree/flyweight/internal/regex"
)

// listStore is backed by a linked list plus map index, giving O(1)
// promotion for large capacities. Evictions are done explicitly so the
// cache decides when patterns are released.
type listStore struct {
	lru      *simplelru.LRU[string, regex.Pattern]
	capacity int
}

func newListStore(capacity int) (*listStore, error) {
	l, err := simplelru.NewLRU[string, regex.Pattern](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("creating pattern list: %w", err)
	}
	return &listStore{lru: l, capacity: capacity}, nil
}

func (s *listStore) get(key string) (regex.Pattern, bool) {
	return s.lru.Get(key)
}

func (s *listStore) push(e entry) (evicted entry, ok bool) {
	if s.lru.Len() >= s.capacity {
		if key, p, removed := s.lru.RemoveOldest(); removed {
			evicted, ok = entry{key: key, pattern: p}, true
		}
	}
	s.lru.Add(e.key, e.pattern)
	return evicted, ok
}

func (s *listStore) keys() []string {
	keys := s.lru.Keys()
	slices.Reverse(keys)
	return keys
}

func (s *listStore) len() int { return s.lru.Len() }

func (s *listStore) drain(fn func(entry)) {
	for {
		key, p, ok := s.lru.RemoveOldest()
		if !ok {
			return
		}
		fn(entry{key: key, pattern: p})
	}
}
