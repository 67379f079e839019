package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// newHandler 根据配置构造 slog.Handler，并返回共享的级别变量
func newHandler(config *Config, opts *options) (slog.Handler, *slog.LevelVar, error) {
	w, err := resolveWriter(config, opts)
	if err != nil {
		return nil, nil, err
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	handlerOpts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: newReplaceAttr(config),
	}

	if strings.ToLower(config.Format) == "json" {
		return slog.NewJSONHandler(w, handlerOpts), levelVar, nil
	}
	return slog.NewTextHandler(w, handlerOpts), levelVar, nil
}

func resolveWriter(config *Config, opts *options) (io.Writer, error) {
	if opts.writer != nil {
		return opts.writer, nil
	}
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log output %s: %w", config.Output, err)
		}
		return f, nil
	}
}

// newReplaceAttr 统一 level 文本、时间格式与 caller 字段
func newReplaceAttr(config *Config) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			level, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			if level > slog.LevelError {
				a.Value = slog.StringValue("FATAL")
			} else {
				a.Value = slog.StringValue(level.String())
			}
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		case slog.SourceKey:
			if source, ok := a.Value.Any().(*slog.Source); ok {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSourcePath(source.File, config.SourceRoot), source.Line))
			}
		}
		return a
	}
}

func trimSourcePath(fileName, sourceRoot string) string {
	if sourceRoot != "" {
		if rel, err := filepath.Rel(sourceRoot, fileName); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if idx := strings.Index(fileName, "ticketing/"); idx != -1 {
		return fileName[idx:]
	}
	return filepath.Base(fileName)
}
