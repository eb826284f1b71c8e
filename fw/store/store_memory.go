package store

import (
	"bytes"
	"strings"
	"sync"
)

// MemoryStore is a Store that forgets everything on exit.
type MemoryStore struct {
	mutex sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string][]byte{}}
}

func (s *MemoryStore) String() string {
	return "memory-store"
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if v, ok := s.items[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	return nil, nil
}

func (s *MemoryStore) Put(key []byte, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.items[string(key)] = bytes.Clone(value)
	return nil
}

func (s *MemoryStore) Remove(key []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.items, string(key))
	return nil
}

func (s *MemoryStore) RemovePrefix(prefix []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for k := range s.items {
		if strings.HasPrefix(k, string(prefix)) {
			delete(s.items, k)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
