package encoder

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrInvalidID 负数 ID 没有二进制表示
	ErrInvalidID = xerrors.New("encoder: invalid id")

	// ErrUnmappableGroup 某个 6 bit 分组在表中没有对应符号
	ErrUnmappableGroup = xerrors.New("encoder: unmappable group")

	// ErrNilTable 未提供符号表
	ErrNilTable = xerrors.New("encoder: nil alphabet table")
)
