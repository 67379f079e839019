package db

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("db: invalid config")

	// ErrConnectorRequired 未提供连接器
	ErrConnectorRequired = xerrors.New("db: connector is required")

	// ErrNotConnected 连接器尚未 Connect
	ErrNotConnected = xerrors.New("db: connector is not connected")
)
