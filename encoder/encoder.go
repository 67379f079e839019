// Package encoder 将已分配的整数 ID 转换为短编码。
//
// ID 的二进制表示左侧补零到 6 的整数倍，按高位在前切成 6 bit 分组，
// 每组经符号表映射为一个字符。编码长度为 ceil(bitlen(id)/6)，ID 0 编码为单个符号。
// 不提供解码。
package encoder

import (
	"math/bits"

	"github.com/ceyewan/ticketing/alphabet"
	"github.com/ceyewan/ticketing/xerrors"
)

// Encoder 无状态，可并发使用
type Encoder struct {
	table *alphabet.Table
}

// New 基于已加载的符号表创建 Encoder
func New(table *alphabet.Table) (*Encoder, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	return &Encoder{table: table}, nil
}

// Encode 返回 id 的短编码
//
// 分组落在表外（62 项表中的 62、63）时返回 ErrUnmappableGroup，不截断也不替换。
func (e *Encoder) Encode(id int64) (string, error) {
	if id < 0 {
		return "", xerrors.Wrapf(ErrInvalidID, "%d", id)
	}

	n := Len(id)
	out := make([]byte, n)
	v := uint64(id)
	for i := n - 1; i >= 0; i-- {
		group := int(v & (1<<alphabet.GroupBits - 1))
		sym, ok := e.table.Lookup(group)
		if !ok {
			return "", xerrors.Wrapf(ErrUnmappableGroup, "id %d group %d (%06b) at position %d", id, group, group, i)
		}
		out[i] = sym
		v >>= alphabet.GroupBits
	}
	return string(out), nil
}

// Len 返回 id 编码后的长度，id 为 0 时为 1
func Len(id int64) int {
	if id <= 0 {
		return 1
	}
	return (bits.Len64(uint64(id)) + alphabet.GroupBits - 1) / alphabet.GroupBits
}
