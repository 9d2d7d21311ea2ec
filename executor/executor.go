// Package executor 提供弹性操作执行器，负责远程调用的熔断、重试与延迟补偿。
//
// executor 是本工具库的核心组件，它提供了：
// - 服务级粒度的熔断管理（按服务名独立熔断，自动半开探测恢复）
// - 指数退避 + 随机抖动的同步重试
// - 基于错误消息模式的错误分类（不可重试 / 可重试 / 可入队）
// - 有界延迟重试队列与后台处理器（同步重试耗尽后的兜底通道）
// - 进程级统计与按服务健康快照
//
// ## 基本使用
//
//	exec, _ := executor.New(executor.DefaultConfig(),
//	    executor.WithLogger(logger),
//	    executor.WithMeter(meter),
//	)
//	defer exec.Close()
//
//	result, err := exec.Execute(ctx, "ledger", func(ctx context.Context) (any, error) {
//	    return client.SubmitTransaction(ctx, tx)
//	})
//
// ## 事件通知
//
//	exec, _ := executor.New(cfg,
//	    executor.WithEventHandler(func(ev executor.Event) {
//	        // 熔断开启、操作入队等事件会同步回调
//	    }),
//	)
//
// ## 失败语义
//
// Execute 总是把终态错误原样抛回调用方；入队只是额外的补偿通道，
// 不会吞掉错误。唯一的例外是熔断拒绝，此时返回 ErrCircuitOpen
// 包装后的错误，且被保护的操作不会被调用。
package executor

import (
	"context"
	"time"

	"github.com/zenithgo/resilience/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Operation 被保护的操作：一个零参数的异步工作单元。
// 超时控制是操作自身的责任，执行器只负责等待其完成并对错误分类。
type Operation func(ctx context.Context) (any, error)

// Executor 弹性执行器核心接口
type Executor interface {
	// Execute 执行受熔断与重试保护的操作
	// serviceName: 逻辑服务名（熔断与健康统计的粒度）
	// op: 要执行的操作
	// 返回: 操作的执行结果；失败时返回操作自身的终态错误，
	// 熔断拒绝时返回包装了 ErrCircuitOpen 的错误
	Execute(ctx context.Context, serviceName string, op Operation) (any, error)

	// ServiceHealth 获取指定服务的健康快照
	ServiceHealth(serviceName string) ServiceHealth

	// AllServicesHealth 获取所有已知服务的健康快照
	AllServicesHealth() map[string]ServiceHealth

	// ResetCircuit 手动将指定服务的熔断器重置为闭合状态（运维用）
	ResetCircuit(serviceName string)

	// Stats 获取进程级累计统计
	Stats() Stats

	// QueueLen 获取延迟队列当前长度
	QueueLen() int

	// ClearQueue 清空延迟队列，返回被丢弃的条目数
	ClearQueue() int

	// UpdateConfig 运行时合并部分配置
	UpdateConfig(patch ConfigPatch)

	// HealthCheck 聚合健康检查
	HealthCheck() HealthReport

	// Close 停止后台处理器；关闭前会对到期条目做最后一次排空
	Close() error
}

// ========================================
// 状态定义 (State Definitions)
// ========================================

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ========================================
// 健康与统计 (Health & Statistics)
// ========================================

// ServiceHealth 单个服务的健康快照
type ServiceHealth struct {
	Service         string    `json:"service"`
	State           State     `json:"-"`
	StateName       string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time"`

	// IsHealthy 熔断器闭合即视为健康
	IsHealthy bool `json:"is_healthy"`

	// NextRecoveryTime 熔断打开时的预计恢复探测时间，其余状态为 nil
	NextRecoveryTime *time.Time `json:"next_recovery_time,omitempty"`
}

// Stats 进程级累计统计，进程启动后单调递增
type Stats struct {
	TotalOperations      int64 `json:"total_operations"`
	SuccessfulOperations int64 `json:"successful_operations"`
	FailedOperations     int64 `json:"failed_operations"`
	RetriedOperations    int64 `json:"retried_operations"`
	QueuedOperations     int64 `json:"queued_operations"`
	CircuitBreakerTrips  int64 `json:"circuit_breaker_trips"`
}

// 聚合健康状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport 聚合健康检查结果
type HealthReport struct {
	Status    string   `json:"status"` // healthy | degraded | unhealthy
	Issues    []string `json:"issues,omitempty"`
	QueueLen  int      `json:"queue_len"`
	ErrorRate float64  `json:"error_rate"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建弹性执行器实例
//
// 参数:
//   - cfg: 执行器配置，nil 时使用 DefaultConfig()
//   - opts: 可选参数 (Logger, Meter, EventHandler)
//
// 创建后后台队列处理器立即启动，使用结束时必须调用 Close()。
func New(cfg *Config, opts ...Option) (Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	} else {
		logger = logger.WithNamespace("executor")
	}

	return newExecutor(cfg, logger, opt.meter, opt.handler)
}
