package allocator

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/ticketing/partition"
)

// memStore 内存分区存储，claimHook 返回非 nil 时代替正常领取
type memStore struct {
	mu         sync.Mutex
	partitions map[int64]*partition.Partition
	claimHook  func(id int64) error
	claims     atomic.Int64
	listErr    error // 受 mu 保护
}

func (s *memStore) failList(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func newMemStore(partitions ...partition.Partition) *memStore {
	s := &memStore{partitions: make(map[int64]*partition.Partition)}
	s.add(partitions...)
	return s
}

func (s *memStore) add(partitions ...partition.Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range partitions {
		p := partitions[i]
		s.partitions[p.ID] = &p
	}
}

func (s *memStore) Claim(_ context.Context, id int64) (int64, error) {
	s.claims.Add(1)
	if s.claimHook != nil {
		if err := s.claimHook(id); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return 0, partition.ErrPartitionNotFound
	}
	if p.Exhausted() {
		return 0, partition.ErrExhaustedPartition
	}
	v := p.Current
	p.Current++
	return v, nil
}

func (s *memStore) ListAvailable(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var ids []int64
	for id, p := range s.partitions {
		if !p.Exhausted() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) Get(_ context.Context, id int64) (*partition.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return nil, partition.ErrPartitionNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) Insert(_ context.Context, partitions []partition.Partition) error {
	s.add(partitions...)
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.partitions)), nil
}

func (s *memStore) Stats(context.Context) (partition.Stats, error) {
	return partition.Stats{}, nil
}
