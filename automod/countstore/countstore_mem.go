package countstore

import (
	"context"
	"sync"
	"time"
)

type MemCountStore struct {
	lk       sync.Mutex
	counts   map[string]int
	distinct map[string]map[string]bool
	now      func() time.Time
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts:   make(map[string]int),
		distinct: make(map[string]map[string]bool),
		now:      time.Now,
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.counts[periodBucket(name, val, period, s.now())], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	now := s.now()
	for _, p := range Periods {
		s.counts[periodBucket(name, val, p, now)]++
	}
	return nil
}

func (s *MemCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.distinct[periodBucket(name, bucket, period, s.now())]), nil
}

func (s *MemCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	now := s.now()
	for _, p := range Periods {
		k := periodBucket(name, bucket, p, now)
		m, ok := s.distinct[k]
		if !ok {
			m = make(map[string]bool)
			s.distinct[k] = m
		}
		m[val] = true
	}
	return nil
}
