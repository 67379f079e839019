package breaker

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = xerrors.New("breaker: invalid config")

	// ErrKeyEmpty 熔断键为空
	ErrKeyEmpty = xerrors.New("breaker: key is empty")

	// ErrOpenState 熔断器处于打开状态，或半开状态下探测请求已满
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")
)
