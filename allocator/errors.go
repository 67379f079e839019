package allocator

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrSpaceExhausted 刷新后仍没有可用分区，ID 空间已耗尽
	ErrSpaceExhausted = xerrors.New("allocator: id space exhausted")

	// ErrServiceUnavailable 重试次数用尽
	ErrServiceUnavailable = xerrors.New("allocator: service unavailable")

	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = xerrors.New("allocator: invalid config")

	// ErrClosed Allocator 已关闭
	ErrClosed = xerrors.New("allocator: closed")
)

// Claim 返回的错误携带的错误码，用 xerrors.GetCode 提取
const (
	CodeSpaceExhausted     = "space_exhausted"
	CodeRetriesExhausted   = "retries_exhausted"
	CodeStorageUnavailable = "storage_unavailable"
)
