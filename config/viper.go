package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/xerrors"
)

// loader 实现 Loader 接口
type loader struct {
	v         *viper.Viper
	cfg       *Config
	opts      *options
	logger    clog.Logger
	mu        sync.Mutex
	loaded    bool
	watches   map[string][]chan Event
	oldValues map[string]any
}

func newLoader(cfg *Config, opts *options) Loader {
	return &loader{
		v:         viper.New(),
		cfg:       cfg,
		opts:      opts,
		logger:    opts.logger,
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
	}
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// 1. 默认值（最低优先级），同时让 AutomaticEnv 能覆盖嵌套键
	for key, value := range l.cfg.Defaults {
		l.v.SetDefault(key, value)
	}

	// 2. 环境变量
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// 3. .env 文件
	if !l.opts.disableDotEnv {
		if err := l.loadDotEnv(); err != nil {
			l.logger.Debug("no .env file loaded", clog.Error(err))
		}
	}

	// 4. 基础配置文件
	if l.cfg.File != "" {
		l.v.SetConfigFile(l.cfg.File)
	} else {
		l.v.SetConfigName(l.cfg.Name)
		l.v.SetConfigType(l.cfg.FileType)
		for _, path := range l.cfg.Paths {
			l.v.AddConfigPath(path)
		}
	}

	fileFound := true
	if err := l.v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return xerrors.Wrapf(err, "read config file %s", l.cfg.Name)
		}
		if l.opts.requireFile {
			return xerrors.Wrapf(ErrFileNotFound, "%s", l.describeTarget())
		}
		fileFound = false
		l.logger.Info("no configuration file found, using defaults and environment",
			clog.String("target", l.describeTarget()))
	}

	// 5. 环境特定配置
	if fileFound {
		if err := l.mergeEnvironmentConfig(); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.loaded = true
	l.mu.Unlock()

	// 6. 热更新
	if fileFound && !l.opts.disableWatch {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			if err := l.mergeEnvironmentConfig(); err != nil {
				l.logger.Warn("reload environment config failed", clog.Error(err))
			}
			l.notifyWatches(e)
		})
		l.v.WatchConfig()
	}

	l.logger.Debug("configuration loaded", clog.String("file", l.v.ConfigFileUsed()))
	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func (l *loader) describeTarget() string {
	if l.cfg.File != "" {
		return l.cfg.File
	}
	return fmt.Sprintf("%s.%s in %v", l.cfg.Name, l.cfg.FileType, l.cfg.Paths)
}

// loadDotEnv 依次尝试工作目录与各搜索路径下的 .env 文件
//
// godotenv 不覆盖已存在的环境变量，因此真实环境变量优先。
func (l *loader) loadDotEnv() error {
	candidates := []string{".env"}
	for _, path := range l.cfg.Paths {
		candidates = append(candidates, filepath.Join(path, ".env"))
	}
	if l.cfg.File != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(l.cfg.File), ".env"))
	}

	var lastErr error
	loaded := false
	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			loaded = true
		} else {
			lastErr = err
		}
	}
	if !loaded {
		return lastErr
	}
	return nil
}

// mergeEnvironmentConfig 合并 <name>.<env>.<ext> 覆盖文件
func (l *loader) mergeEnvironmentConfig() error {
	env := os.Getenv(l.cfg.EnvPrefix + "_ENV")
	if env == "" {
		return nil
	}

	base := l.v.ConfigFileUsed()
	ext := filepath.Ext(base)
	overlay := strings.TrimSuffix(base, ext) + "." + env + ext

	f, err := os.Open(overlay)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Debug("no environment config", clog.String("env", env))
			return nil
		}
		return xerrors.Wrapf(err, "open environment config %s", overlay)
	}
	defer f.Close()

	if err := l.v.MergeConfig(f); err != nil {
		return xerrors.Wrapf(err, "merge environment config %s", overlay)
	}
	l.logger.Info("loaded environment config", clog.String("env", env), clog.String("file", overlay))
	return nil
}

// Get 根据 key 获取配置值
func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

// Unmarshal 将整个配置反序列化到结构体
func (l *loader) Unmarshal(v any) error {
	if err := l.v.Unmarshal(v); err != nil {
		return xerrors.Wrap(xerrors.Join(ErrValidationFailed, err), "unmarshal config")
	}
	return nil
}

// UnmarshalKey 将特定配置 key 反序列化到结构体
func (l *loader) UnmarshalKey(key string, v any) error {
	if err := l.v.UnmarshalKey(key, v); err != nil {
		return xerrors.Wrapf(xerrors.Join(ErrValidationFailed, err), "unmarshal key %s", key)
	}
	return nil
}

func (l *loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch 订阅特定配置 key 的变更，ctx 取消后通道关闭
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return nil, ErrNotLoaded
	}

	ch := make(chan Event, 10)
	l.watches[key] = append(l.watches[key], ch)
	l.oldValues[key] = l.v.Get(key)

	go func() {
		<-ctx.Done()
		l.removeWatch(key, ch)
	}()

	return ch, nil
}

func (l *loader) removeWatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			l.watches[key] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	if len(l.watches[key]) == 0 {
		delete(l.watches, key)
		delete(l.oldValues, key)
	}
}

func (l *loader) notifyWatches(_ fsnotify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, channels := range l.watches {
		newValue := l.v.Get(key)
		oldValue := l.oldValues[key]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		l.oldValues[key] = newValue

		event := Event{Key: key, Value: newValue, OldValue: oldValue, Timestamp: time.Now()}
		for _, ch := range channels {
			select {
			case ch <- event:
			default:
				l.logger.Warn("watch channel full, dropping event", clog.String("key", key))
			}
		}
	}
}
