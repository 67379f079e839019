package config

import "github.com/ceyewan/ticketing/xerrors"

var (
	// ErrFileNotFound 要求配置文件存在但未找到
	ErrFileNotFound = xerrors.New("config: file not found")

	// ErrValidationFailed 配置内容校验失败
	ErrValidationFailed = xerrors.New("config: validation failed")

	// ErrNotLoaded 在 Load 之前调用了 Watch
	ErrNotLoaded = xerrors.New("config: loader not loaded")
)
