package executor

import "github.com/zenithgo/resilience/xerrors"

// 错误定义
var (
	// ErrServiceNameEmpty 服务名为空
	ErrServiceNameEmpty = xerrors.New("executor: service name is empty")

	// ErrOperationNil 操作为空
	ErrOperationNil = xerrors.New("executor: operation is nil")

	// ErrCircuitOpen 熔断器打开或半开探测额度用尽，调用被拒绝
	// 被保护的操作不会被调用，这不是操作自身产生的错误
	ErrCircuitOpen = xerrors.New("executor: circuit breaker is open")

	// ErrClosed 执行器已关闭
	ErrClosed = xerrors.New("executor: executor is closed")
)
