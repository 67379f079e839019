// Package alphabet 生成并持久化 6 bit 值到可打印符号的双射表。
//
// 表在部署时生成一次，之后所有进程只读加载同一份文件；
// 同一输入在不同进程间得到相同编码依赖于这一点。Table 加载后不可变，可并发读取。
package alphabet

import (
	"math/rand/v2"
	"strings"

	"github.com/ceyewan/ticketing/xerrors"
)

const (
	// Pool 基础符号池：大小写字母与数字，共 62 个
	Pool = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// ExtendedPool 扩展符号池：在 Pool 基础上加入 URL 安全的 '-' 与 '_'，覆盖全部 64 个 6 bit 值
	ExtendedPool = Pool + "-_"

	// GroupBits 每个符号承载的位数
	GroupBits = 6
)

// 表的合法大小
const (
	BaseSize     = len(Pool)
	ExtendedSize = len(ExtendedPool)
)

// Rand 随机源，*rand.Rand 满足该接口
type Rand interface {
	IntN(n int) int
}

// Table 6 bit 值到符号的不可变映射
type Table struct {
	symbols string
}

// New 以 symbols[i] 作为键 i 的符号构造表
//
// symbols 长度必须为 62 或 64，且每个符号都来自 ExtendedPool 并且互不相同。
func New(symbols string) (*Table, error) {
	if len(symbols) != BaseSize && len(symbols) != ExtendedSize {
		return nil, xerrors.Wrapf(ErrInvalidTable, "expected %d or %d symbols, got %d", BaseSize, ExtendedSize, len(symbols))
	}
	var seen [256]bool
	for i := 0; i < len(symbols); i++ {
		c := symbols[i]
		if strings.IndexByte(ExtendedPool, c) < 0 {
			return nil, xerrors.Wrapf(ErrInvalidTable, "symbol %q at key %d is not in the pool", c, i)
		}
		if seen[c] {
			return nil, xerrors.Wrapf(ErrInvalidTable, "symbol %q repeated at key %d", c, i)
		}
		seen[c] = true
	}
	return &Table{symbols: symbols}, nil
}

// Generate 从 Pool 中无放回随机抽取，生成 62 项的表
//
// rng 为 nil 时使用 math/rand/v2 的全局随机源。
func Generate(rng Rand) *Table {
	return &Table{symbols: shuffle(Pool, rng)}
}

// GenerateExtended 从 ExtendedPool 生成 64 项的表，可编码任意 6 bit 分组
func GenerateExtended(rng Rand) *Table {
	return &Table{symbols: shuffle(ExtendedPool, rng)}
}

// shuffle 对 i = 0..n-1 依次从剩余符号中均匀选取一个分配给键 i
func shuffle(pool string, rng Rand) string {
	if rng == nil {
		rng = globalRand{}
	}
	remaining := []byte(pool)
	out := make([]byte, 0, len(pool))
	for len(remaining) > 0 {
		j := rng.IntN(len(remaining))
		out = append(out, remaining[j])
		remaining = append(remaining[:j], remaining[j+1:]...)
	}
	return string(out)
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Lookup 返回键 v 对应的符号；v 超出表范围时 ok 为 false
func (t *Table) Lookup(v int) (byte, bool) {
	if v < 0 || v >= len(t.symbols) {
		return 0, false
	}
	return t.symbols[v], true
}

// Len 返回表项数（62 或 64）
func (t *Table) Len() int {
	return len(t.symbols)
}

// Extended 表是否覆盖全部 64 个 6 bit 值
func (t *Table) Extended() bool {
	return len(t.symbols) == ExtendedSize
}

// Symbols 按键顺序返回全部符号
func (t *Table) Symbols() string {
	return t.symbols
}
