package alphabet

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrInvalidTable 表不是双射，或大小不是 62/64
	ErrInvalidTable = xerrors.New("alphabet: invalid table")

	// ErrTableExists 目标文件已存在且未指定覆盖
	ErrTableExists = xerrors.New("alphabet: table file already exists")

	// ErrUnsupportedFormat 不支持的持久化格式
	ErrUnsupportedFormat = xerrors.New("alphabet: unsupported format")
)
