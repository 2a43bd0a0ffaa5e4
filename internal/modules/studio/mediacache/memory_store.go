package mediacache

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process ObjectStore for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	puts    int
	deletes int
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: strings.TrimRight(baseURL, "/"), objects: map[string][]byte{}}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = b
	s.puts++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.deletes++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PublicURL(key string) string {
	if s.baseURL == "" {
		return "memory://" + key
	}
	return fmt.Sprintf("%s/%s", s.baseURL, strings.TrimLeft(key, "/"))
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) Counts() (puts, deletes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts, s.deletes
}
