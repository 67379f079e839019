// Package partition 将 ID 空间静态切分为互不相交的区间，并负责区间的持久化与原子领取。
//
// 每个分区维护一个 current 计数器，Claim 在存储端对单个分区加锁后执行
// "检查 current < range_end，返回 current 并加一"，不同分区之间互不阻塞。
// 分区只在初始化时创建，之后不会拆分、合并或删除。
package partition

import (
	"context"
)

// TableName 分区表名
const TableName = "ticketing"

// Partition 分区记录
type Partition struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	RangeStart int64 `gorm:"column:range_start;not null" json:"range_start"`
	RangeEnd   int64 `gorm:"column:range_end;not null" json:"range_end"`
	Current    int64 `gorm:"column:current;not null" json:"current"`
}

func (Partition) TableName() string {
	return TableName
}

// Exhausted 分区是否已无可领取的值
func (p *Partition) Exhausted() bool {
	return p.Current >= p.RangeEnd
}

// Issued 已领取的值的个数
func (p *Partition) Issued() int64 {
	return p.Current - p.RangeStart
}

// Remaining 剩余可领取的值的个数
func (p *Partition) Remaining() int64 {
	if p.Exhausted() {
		return 0
	}
	return p.RangeEnd - p.Current
}

// Stats 分区整体状态
type Stats struct {
	Total     int64 `json:"total"`
	Exhausted int64 `json:"exhausted"`
	Issued    int64 `json:"issued"`
	Remaining int64 `json:"remaining"`
}

func (s *Stats) add(p *Partition) {
	s.Total++
	if p.Exhausted() {
		s.Exhausted++
	}
	s.Issued += p.Issued()
	s.Remaining += p.Remaining()
}

// Store 分区存储
//
// 实现必须保证 Claim 对同一分区互斥，且返回的值在该分区内严格递增、不重复。
type Store interface {
	// Claim 领取分区的下一个值
	//
	// 可能返回 ErrExhaustedPartition、ErrPartitionNotFound、ErrConflict、ErrStorageUnavailable。
	Claim(ctx context.Context, id int64) (int64, error)

	// ListAvailable 返回所有未耗尽分区的 ID，按升序排列
	ListAvailable(ctx context.Context) ([]int64, error)

	// Get 返回单个分区
	Get(ctx context.Context, id int64) (*Partition, error)

	// Insert 批量写入分区，仅用于初始化
	Insert(ctx context.Context, partitions []Partition) error

	// Count 返回分区总数
	Count(ctx context.Context) (int64, error)

	// Stats 汇总全部分区状态
	Stats(ctx context.Context) (Stats, error)
}
