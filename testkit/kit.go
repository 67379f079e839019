// Package testkit 为各组件测试提供统一的依赖构造：日志、指标、唯一 ID，
// 以及基于内存 SQLite 或 testcontainers 的存储连接器。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包
func NewKit(t *testing.T) *Kit {
	meter := NewMeter()
	t.Cleanup(func() {
		_ = meter.Shutdown(context.Background())
	})
	return &Kit{
		Ctx:    context.Background(),
		Logger: NewLogger(),
		Meter:  meter,
	}
}

// NewLogger 返回一个用于测试的 logger，warn 以上级别输出到 stderr
func NewLogger() clog.Logger {
	logger, err := clog.New(&clog.Config{Level: "warn", Format: "console", Output: "stderr"},
		clog.WithNamespace("test"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个用于测试的 meter，不监听端口
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("ticketing-test"))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 返回一个带有超时的测试上下文，随测试结束取消
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
//
// 用于生成唯一的 Key 前缀或数据库名，避免测试间数据冲突。
func NewID() string {
	return uuid.New().String()[0:8]
}
