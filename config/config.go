// Package config 提供统一的配置管理能力。
// 基于 Viper 实现，支持多源配置加载与热更新。
//
// 特性：
//   - 多源配置：YAML/JSON 文件、环境变量、.env 文件
//   - 优先级：环境变量 > .env > 配置文件
//   - 热更新：监听配置文件变化并回调通知
//
// 基本使用：
//
//	loader, _ := config.New(&config.Config{
//	    Name:      "config",
//	    Paths:     []string{".", "./config"},
//	    EnvPrefix: "RESILIENCE",
//	})
//	if err := loader.Load(ctx); err != nil {
//	    panic(err)
//	}
//
//	var cfg executor.Config
//	_ = loader.UnmarshalKey("executor", &cfg)
//
//	loader.OnChange(func() {
//	    // 配置文件发生变化，重新拉取需要的段落
//	})
package config

import "strings"

// Config 配置加载器自身的配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string // 配置文件搜索路径，默认 ["."，"./config"]
	FileType  string   // 配置文件类型 (yaml, json, etc.)，默认 "yaml"
	EnvPrefix string   // 环境变量前缀，默认 "RESILIENCE"
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
		c.EnvPrefix = "RESILIENCE"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// New 创建配置加载器。
//
// cfg 为 nil 时使用默认配置。
func New(cfg *Config) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return newLoader(cfg), nil
}
