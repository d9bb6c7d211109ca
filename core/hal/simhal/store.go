package simhal

import (
	"sort"
	"strings"
	"sync"
)

// store is the in-memory backing for simhal's simulated storage.* async
// operations. A real deployment target would back this with a disk- or
// object-store-backed service; simhal only needs enough fidelity to
// exercise the async completion protocol end to end.
type store struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newStore() store {
	return store{data: make(map[string][]byte)}
}

func (s *store) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *store) put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
}

func (s *store) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// list returns newline-joined keys sharing prefix, sorted for determinism.
func (s *store) list(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}
