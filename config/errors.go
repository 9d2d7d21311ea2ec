package config

import "github.com/zenithgo/resilience/xerrors"

// 错误定义
var (
	// ErrNotLoaded Load 之前调用了读取方法
	ErrNotLoaded = xerrors.New("config: loader not loaded")
)

// WrapLoadError 包装加载错误
func WrapLoadError(err error, message string) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrapf(err, "failed to load config: %s", message)
}
