package executor

import (
	"github.com/zenithgo/resilience/clog"
	"github.com/zenithgo/resilience/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	handler EventHandler
}

// WithLogger 设置 Logger
// 内部会自动添加 namespace: "executor"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithEventHandler 注册事件回调
//
// 事件分类见 events.go；回调中的 panic 会被捕获并记录，
// 不会影响执行器自身的流程。
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.handler = handler
	}
}
