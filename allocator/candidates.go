package allocator

import (
	"math/rand/v2"
	"sync"
)

// Rand 随机源，*rand.Rand 满足该接口
type Rand interface {
	IntN(n int) int
}

// lockedRand 为非并发安全的随机源加锁
type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// candidates 未耗尽分区的本地缓存
//
// 只是提示：缓存中的分区可能已被其他进程耗尽，由 Claim 的结果纠正。
type candidates struct {
	mu    sync.RWMutex
	ids   []int64
	index map[int64]int
}

func newCandidates() *candidates {
	return &candidates{index: make(map[int64]int)}
}

// replace 用存储中的最新列表整体替换
func (c *candidates) replace(ids []int64) {
	index := make(map[int64]int, len(ids))
	list := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = len(list)
		list = append(list, id)
	}

	c.mu.Lock()
	c.ids = list
	c.index = index
	c.mu.Unlock()
}

// remove 移除分区，返回是否确实存在
func (c *candidates) remove(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return false
	}
	last := len(c.ids) - 1
	c.ids[i] = c.ids[last]
	c.index[c.ids[i]] = i
	c.ids = c.ids[:last]
	delete(c.index, id)
	return true
}

// pick 均匀随机选择一个分区
func (c *candidates) pick(r Rand) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.ids) == 0 {
		return 0, false
	}
	return c.ids[r.IntN(len(c.ids))], true
}

func (c *candidates) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
