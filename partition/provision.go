package partition

import (
	"context"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/xerrors"
)

// Provision 按规划生成分区并写入空存储
//
// 存储中已有分区时返回 ErrAlreadyProvisioned。写入按 BatchSize 分批进行，
// 中途失败时已写入的批次保留，需人工清理后重试。
func Provision(ctx context.Context, store Store, plan Plan, logger clog.Logger) ([]Partition, error) {
	if store == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		logger = clog.Discard()
	}
	plan.setDefaults()

	partitions, err := Generate(plan)
	if err != nil {
		return nil, err
	}

	count, err := store.Count(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "count partitions")
	}
	if count > 0 {
		return nil, xerrors.Wrapf(ErrAlreadyProvisioned, "store holds %d partitions", count)
	}

	for start := 0; start < len(partitions); start += plan.BatchSize {
		end := min(start+plan.BatchSize, len(partitions))
		if err := store.Insert(ctx, partitions[start:end]); err != nil {
			return nil, xerrors.Wrapf(err, "insert partitions %d..%d", partitions[start].ID, partitions[end-1].ID)
		}
		logger.Debug("partition batch inserted",
			clog.Int64("from", partitions[start].ID), clog.Int64("to", partitions[end-1].ID))
	}

	logger.Info("partitions provisioned",
		clog.Int("count", len(partitions)), clog.String("plan", plan.String()))
	return partitions, nil
}
