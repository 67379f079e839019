package alphabet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ceyewan/ticketing/xerrors"
)

// 持久化文档：键为 6 位二进制字符串（如 "000011"），值为单个符号
type document map[string]string

func groupKey(v int) string {
	return fmt.Sprintf("%0*b", GroupBits, v)
}

// Marshal 将表编码为指定格式
func Marshal(t *Table, f Format) ([]byte, error) {
	s, err := newSerializer(f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%q", f)
	}
	doc := make(document, t.Len())
	for i := 0; i < t.Len(); i++ {
		doc[groupKey(i)] = string(t.symbols[i])
	}
	return s.Marshal(doc)
}

// Unmarshal 解码并校验表
func Unmarshal(data []byte, f Format) (*Table, error) {
	s, err := newSerializer(f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%q", f)
	}
	var doc document
	if err := s.Unmarshal(data, &doc); err != nil {
		return nil, xerrors.Wrap(xerrors.Join(ErrInvalidTable, err), "decode table")
	}

	symbols := make([]byte, len(doc))
	filled := make([]bool, len(doc))
	for key, sym := range doc {
		if len(key) != GroupBits {
			return nil, xerrors.Wrapf(ErrInvalidTable, "key %q is not a %d-bit group", key, GroupBits)
		}
		v, err := strconv.ParseUint(key, 2, GroupBits)
		if err != nil {
			return nil, xerrors.Wrapf(ErrInvalidTable, "key %q is not binary", key)
		}
		if int(v) >= len(doc) {
			return nil, xerrors.Wrapf(ErrInvalidTable, "key %q out of range for %d entries", key, len(doc))
		}
		if len(sym) != 1 {
			return nil, xerrors.Wrapf(ErrInvalidTable, "symbol for key %q must be a single character", key)
		}
		symbols[v] = sym[0]
		filled[v] = true
	}
	for i, ok := range filled {
		if !ok {
			return nil, xerrors.Wrapf(ErrInvalidTable, "missing key %s", groupKey(i))
		}
	}
	return New(string(symbols))
}

// SaveOption Save 的选项
type SaveOption func(*saveOptions)

type saveOptions struct {
	force  bool
	format Format
}

// WithForce 允许覆盖已存在的文件
//
// 已发出的编码不依赖表，但多个进程使用不同的表会产生不一致的新编码。
func WithForce() SaveOption {
	return func(o *saveOptions) {
		o.force = true
	}
}

// WithFormat 指定格式，默认根据扩展名推断
func WithFormat(f Format) SaveOption {
	return func(o *saveOptions) {
		o.format = f
	}
}

// Save 持久化表；文件已存在且未指定 WithForce 时返回 ErrTableExists
func Save(path string, t *Table, opts ...SaveOption) error {
	o := &saveOptions{format: FormatFromPath(path)}
	for _, opt := range opts {
		opt(o)
	}

	data, err := Marshal(t, o.format)
	if err != nil {
		return err
	}

	if !o.force {
		if _, err := os.Stat(path); err == nil {
			return xerrors.Wrapf(ErrTableExists, "%s", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return xerrors.Wrapf(err, "stat %s", path)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return xerrors.Wrapf(err, "create directory %s", dir)
		}
	}

	// 先写临时文件再 rename，避免读者看到半截内容
	tmp, err := os.CreateTemp(filepath.Dir(path), ".alphabet-*")
	if err != nil {
		return xerrors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrap(err, "write table")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, "close table file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Wrapf(err, "rename to %s", path)
	}
	return nil
}

// Load 读取并校验表，格式根据扩展名推断
func Load(path string) (*Table, error) {
	return LoadFormat(path, FormatFromPath(path))
}

// LoadFormat 以指定格式读取并校验表
func LoadFormat(path string, f Format) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read alphabet table %s", path)
	}
	t, err := Unmarshal(data, f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "load %s", path)
	}
	return t, nil
}
