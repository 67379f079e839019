package trace

import "github.com/ceyewan/ticketing/xerrors"

// Config 链路追踪配置
//
//	trace:
//	  enabled: true
//	  service_name: "ticketing"
//	  endpoint: "localhost:4317"
//	  sampler: 0.1
type Config struct {
	// Enabled 为 false 时只安装本地 TracerProvider，不导出
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Sampler     float64 `mapstructure:"sampler" yaml:"sampler" json:"sampler"`
	Batcher     string  `mapstructure:"batcher" yaml:"batcher" json:"batcher"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure" json:"insecure"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}

// validate 设置默认值并检查配置；使用自定义 exporter 时不要求 Endpoint
func (c *Config) validate(customExporter bool) error {
	if c == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "trace config is required")
	}
	if c.ServiceName == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "service_name is required")
	}
	if c.Endpoint == "" && !customExporter {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "endpoint is required")
	}
	if c.Sampler < 0 || c.Sampler > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != "" && c.Batcher != "batch" && c.Batcher != "simple" {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "batcher must be \"batch\" or \"simple\", got %q", c.Batcher)
	}
	return nil
}
