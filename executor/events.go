package executor

import "time"

// EventType 事件类型
type EventType string

const (
	// EventOperationSuccess 操作成功（含重试后成功）
	EventOperationSuccess EventType = "operation_success"

	// EventOperationFailed 操作在重试耗尽后终态失败
	EventOperationFailed EventType = "operation_failed"

	// EventCircuitOpened 熔断器打开
	EventCircuitOpened EventType = "circuit_breaker_opened"

	// EventCircuitReset 熔断器恢复闭合（探测成功或手动重置）
	EventCircuitReset EventType = "circuit_breaker_reset"

	// EventOperationQueued 操作进入延迟重试队列
	EventOperationQueued EventType = "operation_queued"

	// EventQueuedOperationSuccess 队列内重放成功
	EventQueuedOperationSuccess EventType = "queued_operation_success"

	// EventQueuedOperationFailed 队列内重试耗尽，条目被永久丢弃
	EventQueuedOperationFailed EventType = "queued_operation_failed"

	// EventQueueCleared 队列被整体清空
	EventQueueCleared EventType = "queue_cleared"

	// EventConfigUpdated 配置被运行时更新
	EventConfigUpdated EventType = "config_updated"
)

// Event 执行器事件，同步投递给注册的 EventHandler
type Event struct {
	Type     EventType
	Service  string
	Err      error
	Attempts int
	Count    int // 批量事件（如 queue_cleared）携带的数量
	Time     time.Time
}

// EventHandler 事件回调函数类型
// 回调在执行器的调用路径上同步执行，耗时逻辑应由调用方自行异步化
type EventHandler func(Event)
