package config

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// loader 实现 Loader 接口
type loader struct {
	v      *viper.Viper
	cfg    *Config
	loaded atomic.Bool

	mu        sync.Mutex
	callbacks []func()
}

// newLoader 创建配置加载器（内部使用）
func newLoader(cfg *Config) *loader {
	return &loader{
		v:   viper.New(),
		cfg: cfg,
	}
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	l.v.SetConfigName(l.cfg.Name)
	l.v.SetConfigType(l.cfg.FileType)
	for _, path := range l.cfg.Paths {
		l.v.AddConfigPath(path)
	}

	// 环境变量（最高优先级）
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// .env 文件（次高优先级），不存在时忽略
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return WrapLoadError(err, ".env")
		}
	}

	// 配置文件（最低优先级），找不到文件不算错误
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return WrapLoadError(err, l.cfg.Name)
		}
	}

	// 文件监听与变更通知
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		callbacks := make([]func(), len(l.callbacks))
		copy(callbacks, l.callbacks)
		l.mu.Unlock()

		for _, fn := range callbacks {
			fn()
		}
	})
	l.v.WatchConfig()

	l.loaded.Store(true)
	return nil
}

// Get 获取原始配置值
func (l *loader) Get(key string) any {
	if !l.loaded.Load() {
		return nil
	}
	return l.v.Get(key)
}

// Unmarshal 将整个配置反序列化到结构体
func (l *loader) Unmarshal(v any) error {
	if !l.loaded.Load() {
		return ErrNotLoaded
	}
	return l.v.Unmarshal(v)
}

// UnmarshalKey 将指定 Key 的配置反序列化到结构体
func (l *loader) UnmarshalKey(key string, v any) error {
	if !l.loaded.Load() {
		return ErrNotLoaded
	}
	return l.v.UnmarshalKey(key, v)
}

// OnChange 注册配置变更回调
func (l *loader) OnChange(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.callbacks = append(l.callbacks, fn)
	l.mu.Unlock()
}
