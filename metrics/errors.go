package metrics

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = xerrors.New("metrics: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("metrics: invalid config")
)
