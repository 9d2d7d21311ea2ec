package executor

// Metrics 指标常量定义
const (
	// MetricOperationsTotal 进入执行器的操作总数 (Counter)
	MetricOperationsTotal = "executor_operations_total"

	// MetricSuccessTotal 成功操作数 (Counter)
	MetricSuccessTotal = "executor_success_total"

	// MetricFailuresTotal 终态失败操作数 (Counter)
	MetricFailuresTotal = "executor_failures_total"

	// MetricRetriesTotal 经重试后才成功的操作数 (Counter)
	MetricRetriesTotal = "executor_retries_total"

	// MetricRejectsTotal 被熔断拒绝的操作数 (Counter)
	MetricRejectsTotal = "executor_rejects_total"

	// MetricQueuedTotal 进入延迟队列的操作数 (Counter)
	MetricQueuedTotal = "executor_queued_total"

	// MetricQueueDepth 延迟队列当前深度 (Gauge)
	MetricQueueDepth = "executor_queue_depth"

	// MetricCircuitTransitions 熔断状态变更次数 (Counter)
	MetricCircuitTransitions = "executor_circuit_transitions_total"

	// MetricOperationDuration 操作耗时（含重试与退避） (Histogram)
	MetricOperationDuration = "executor_operation_duration_seconds"

	// LabelFromState 源状态标签
	LabelFromState = "from_state"

	// LabelToState 目标状态标签
	LabelToState = "to_state"
)
