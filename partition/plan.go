package partition

import (
	"fmt"

	"github.com/ceyewan/ticketing/xerrors"
)

// MaxSafeID ID 上限（不含），超过后 Redis Lua 的数值运算不再精确
const MaxSafeID = int64(1) << 53

// MaxPartitions 单个规划允许生成的分区数上限
const MaxPartitions = int64(1) << 20

// Plan ID 空间切分参数
type Plan struct {
	MinID        int64 `mapstructure:"min_id" json:"min_id"`
	MaxID        int64 `mapstructure:"max_id" json:"max_id"`
	PerRangeSize int64 `mapstructure:"per_range_size" json:"per_range_size"`
	BatchSize    int   `mapstructure:"batch_size" json:"batch_size"`
}

// DefaultPlan 返回默认规划
//
// 从 4098 开始，编码至少 3 个符号；上限 2^48-1，编码最多 8 个符号；
// 每个分区 12 亿个值，按每月 1 亿的量约一年耗尽一个分区。
func DefaultPlan() Plan {
	return Plan{
		MinID:        4098,
		MaxID:        1<<48 - 1,
		PerRangeSize: 1_200_000_000,
		BatchSize:    1000,
	}
}

func (p *Plan) setDefaults() {
	if p.BatchSize <= 0 {
		p.BatchSize = 1000
	}
}

func (p *Plan) validate() error {
	if p.MinID < 0 {
		return xerrors.Wrapf(ErrInvalidPlan, "min_id must be non-negative, got %d", p.MinID)
	}
	if p.MaxID <= p.MinID {
		return xerrors.Wrapf(ErrInvalidPlan, "max_id %d must be greater than min_id %d", p.MaxID, p.MinID)
	}
	if p.MaxID >= MaxSafeID {
		return xerrors.Wrapf(ErrInvalidPlan, "max_id must be below 2^53, got %d", p.MaxID)
	}
	if p.PerRangeSize <= 0 {
		return xerrors.Wrapf(ErrInvalidPlan, "per_range_size must be positive, got %d", p.PerRangeSize)
	}
	if p.MaxID/p.PerRangeSize < 1 {
		return xerrors.Wrapf(ErrInvalidPlan, "per_range_size %d exceeds max_id %d", p.PerRangeSize, p.MaxID)
	}
	if n := p.MaxID / p.PerRangeSize; n > MaxPartitions {
		return xerrors.Wrapf(ErrInvalidPlan, "plan yields %d partitions, limit is %d, raise per_range_size", n, MaxPartitions)
	}
	return nil
}

// String 用于日志输出
func (p Plan) String() string {
	return fmt.Sprintf("[%d, %d] per %d", p.MinID, p.MaxID, p.PerRangeSize)
}

// Generate 按规划生成分区集合
//
// 分区数 N = floor(MaxID / PerRangeSize)；第 i 个分区为 [cursor, cursor+PerRangeSize]，
// 下一个分区从 range_end+1 开始。超过 MaxID 的 range_end 截断到 MaxID 并停止生成；
// 最后一个分区不足 MaxID 时延伸到 MaxID，保证集合覆盖整个 [MinID, MaxID]。
// 分区 ID 从 1 开始。
func Generate(plan Plan) ([]Partition, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	n := plan.MaxID / plan.PerRangeSize
	partitions := make([]Partition, 0, n)
	cursor := plan.MinID
	for i := int64(0); i < n && cursor <= plan.MaxID; i++ {
		end := cursor + plan.PerRangeSize
		if end > plan.MaxID {
			end = plan.MaxID
		}
		partitions = append(partitions, Partition{
			ID:         i + 1,
			RangeStart: cursor,
			RangeEnd:   end,
			Current:    cursor,
		})
		if end == plan.MaxID {
			break
		}
		cursor = end + 1
	}

	last := &partitions[len(partitions)-1]
	if last.RangeEnd < plan.MaxID {
		last.RangeEnd = plan.MaxID
	}
	return partitions, nil
}
