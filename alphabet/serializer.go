package alphabet

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format 持久化格式
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// serializer 定义序列化接口
type serializer interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(value any) ([]byte, error) {
	return json.MarshalIndent(value, "", "  ")
}

func (jsonSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

type msgpackSerializer struct{}

func (msgpackSerializer) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (msgpackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

func newSerializer(f Format) (serializer, error) {
	switch f {
	case FormatJSON, "":
		return jsonSerializer{}, nil
	case FormatMsgpack:
		return msgpackSerializer{}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// FormatFromPath 根据扩展名推断格式：.msgpack/.mp 为 msgpack，其余为 json
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}
