package report

import (
	"container/list"
	"sync"
)

// LRUStore keeps the most recently used runs in memory and delegates to a
// backing Store on miss. Every Save is written through.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // of *RunResult, most recent at front
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save writes the result to the cache and to the backing store.
func (s *LRUStore) Save(result *RunResult) error {
	s.mu.Lock()
	s.put(result)
	s.mu.Unlock()
	return s.back.Save(result)
}

// Load checks the cache first. On miss, loads from the backing store and
// promotes the result into the cache.
func (s *LRUStore) Load(runID string) (*RunResult, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.order.MoveToFront(e)
		r := e.Value.(*RunResult)
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	result, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.put(result)
	s.mu.Unlock()
	return result, nil
}

// List delegates to the backing store when it is a Lister. Otherwise it
// returns the cached runs, most recently used first.
func (s *LRUStore) List(limit int) ([]*RunResult, error) {
	if l, ok := s.back.(Lister); ok {
		return l.List(limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*RunResult
	for e := s.order.Front(); e != nil; e = e.Next() {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e.Value.(*RunResult))
	}
	return out, nil
}

// put must be called with mu held.
func (s *LRUStore) put(result *RunResult) {
	if e, ok := s.items[result.ID]; ok {
		e.Value = result
		s.order.MoveToFront(e)
		return
	}
	s.items[result.ID] = s.order.PushFront(result)
	if s.order.Len() > s.cap {
		last := s.order.Back()
		s.order.Remove(last)
		delete(s.items, last.Value.(*RunResult).ID)
	}
}
