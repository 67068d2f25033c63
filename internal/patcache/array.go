package patcache

import "github.com/thebinarysearchtree/flyweight/internal/regex"

// arrayStore keeps occupied slots as a contiguous prefix of a fixed-size
// backing array. Index 0 is the most recently used entry.
type arrayStore struct {
	slots []entry
}

func newArrayStore(capacity int) *arrayStore {
	return &arrayStore{slots: make([]entry, 0, capacity)}
}

func (s *arrayStore) get(key string) (regex.Pattern, bool) {
	for i := range s.slots {
		if s.slots[i].key != key {
			continue
		}
		if i > 0 {
			found := s.slots[i]
			copy(s.slots[1:i+1], s.slots[:i])
			s.slots[0] = found
		}
		return s.slots[0].pattern, true
	}
	return nil, false
}

func (s *arrayStore) push(e entry) (evicted entry, ok bool) {
	n := len(s.slots)
	if n == cap(s.slots) {
		evicted, ok = s.slots[n-1], true
		s.slots[n-1] = entry{}
		n--
	}
	s.slots = s.slots[:n+1]
	copy(s.slots[1:], s.slots[:n])
	s.slots[0] = e
	return evicted, ok
}

func (s *arrayStore) keys() []string {
	keys := make([]string, len(s.slots))
	for i := range s.slots {
		keys[i] = s.slots[i].key
	}
	return keys
}

func (s *arrayStore) len() int { return len(s.slots) }

func (s *arrayStore) drain(fn func(entry)) {
	for i := len(s.slots) - 1; i >= 0; i-- {
		fn(s.slots[i])
		s.slots[i] = entry{}
	}
	s.slots = s.slots[:0]
}
