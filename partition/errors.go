package partition

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrExhaustedPartition 分区已无可分配的值
	ErrExhaustedPartition = xerrors.New("partition: exhausted")

	// ErrPartitionNotFound 分区不存在，匹配 xerrors.ErrNotFound
	ErrPartitionNotFound = xerrors.Wrap(xerrors.ErrNotFound, "partition")

	// ErrConflict 加锁超时、序列化失败、死锁或 CAS 未命中，可重试
	ErrConflict = xerrors.New("partition: conflict")

	// ErrStorageUnavailable 存储不可达或熔断器打开
	ErrStorageUnavailable = xerrors.New("partition: storage unavailable")

	// ErrAlreadyProvisioned 存储中已有分区，拒绝重复初始化
	ErrAlreadyProvisioned = xerrors.New("partition: already provisioned")

	// ErrNotProvisioned 存储中没有任何分区
	ErrNotProvisioned = xerrors.New("partition: not provisioned")

	// ErrInvalidPlan 分区规划参数不合法
	ErrInvalidPlan = xerrors.New("partition: invalid plan")

	// ErrNilClient 存储依赖未提供
	ErrNilClient = xerrors.New("partition: nil client")
)
