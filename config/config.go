package config

import "strings"

// Config 配置加载器的参数
type Config struct {
	Name      string         // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string       // 配置文件搜索路径，默认 [".", "./config"]
	File      string         // 显式指定的配置文件路径，设置后忽略 Name 与 Paths
	FileType  string         // 配置文件类型 (yaml, json, etc.)
	EnvPrefix string         // 环境变量前缀，默认 "TICKETING"
	Defaults  map[string]any // 键的默认值，同时保证嵌套键可被环境变量覆盖
}

// validate 设置默认值并验证配置
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "TICKETING"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// New 创建配置加载器。
//
// 如果 cfg 为 nil，使用默认配置。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return newLoader(cfg, applyOptions(opts...)), nil
}
