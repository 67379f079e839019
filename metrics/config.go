package metrics

import "github.com/ceyewan/ticketing/xerrors"

// Config 指标系统的配置
//
//	metrics:
//	  enabled: true
//	  service_name: "ticketing"
//	  port: 9090
//	  path: "/metrics"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`

	// Version 作为 OpenTelemetry Resource 的 service.version
	Version string `mapstructure:"version" yaml:"version" json:"version"`

	// Port 大于 0 时启动 HTTP 服务器暴露 Prometheus 指标
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// Path Prometheus 采集路径，默认 "/metrics"
	Path string `mapstructure:"path" yaml:"path" json:"path"`

	// Runtime 是否采集 Go 运行时指标（GC、goroutine、内存）
	Runtime bool `mapstructure:"runtime" yaml:"runtime" json:"runtime"`
}

// NewDevDefaultConfig 开发环境默认配置：启用指标但不监听端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "ticketing"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return xerrors.Wrapf(ErrInvalidConfig, "port out of range: %d", c.Port)
	}
	if c.Path[0] != '/' {
		return xerrors.Wrapf(ErrInvalidConfig, "path must start with '/': %s", c.Path)
	}
	return nil
}
