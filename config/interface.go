package config

import "context"

// Loader 定义配置加载器的核心行为
// 职责：加载、解析和监听配置变化
type Loader interface {
	// Load 加载配置并初始化内部状态，同时启动文件监听
	Load(ctx context.Context) error

	// Get 获取原始配置值，不存在时返回 nil
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// OnChange 注册配置变更回调；配置文件被修改后回调会被依次调用
	OnChange(fn func())
}
