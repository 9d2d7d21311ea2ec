package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errOf(msg string) error { return errors.New(msg) }

// eventRecorder 线程安全的事件收集器（测试用）
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// testConfig 返回适合单元测试的快节奏配置
func testConfig() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries:   2,
			BaseDelay:    1 * time.Millisecond,
			MaxDelay:     10 * time.Millisecond,
			Multiplier:   2,
			JitterFactor: 0.1,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  50 * time.Millisecond,
			HalfOpenMaxCalls: 2,
		},
		Queue: QueueConfig{
			MaxSize:         10,
			ProcessInterval: time.Hour, // 后台处理器不干扰测试，排空由测试显式触发
			RetryDelay:      1 * time.Millisecond,
			RetryBackoff:    1 * time.Millisecond,
			MaxAttempts:     3,
		},
	}
}

// newTestExecutor 创建测试用执行器实例
func newTestExecutor(t *testing.T, cfg *Config, opts ...Option) Executor {
	t.Helper()

	exec, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return exec
}

// TestExecuteSuccess 测试成功执行
func TestExecuteSuccess(t *testing.T) {
	rec := &eventRecorder{}
	exec := newTestExecutor(t, testConfig(), WithEventHandler(rec.record))

	result, err := exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	stats := exec.Stats()
	assert.Equal(t, int64(1), stats.TotalOperations)
	assert.Equal(t, int64(1), stats.SuccessfulOperations)
	assert.Zero(t, stats.FailedOperations)
	assert.Zero(t, stats.RetriedOperations)

	ev, ok := rec.last(EventOperationSuccess)
	require.True(t, ok)
	assert.Equal(t, "ledger", ev.Service)
	assert.Equal(t, 1, ev.Attempts)
}

// TestExecuteValidation 测试入参校验
func TestExecuteValidation(t *testing.T) {
	exec := newTestExecutor(t, testConfig())

	t.Run("服务名为空", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), "", func(ctx context.Context) (any, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, ErrServiceNameEmpty)
	})

	t.Run("操作为 nil", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), "ledger", nil)
		assert.ErrorIs(t, err, ErrOperationNil)
	})
}

// TestExecuteNonRetryableFailsImmediately 测试不可重试错误不触发重试与入队
func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	rec := &eventRecorder{}
	exec := newTestExecutor(t, testConfig(), WithEventHandler(rec.record))

	opErr := errOf("insufficient funds")
	var calls atomic.Int32

	_, err := exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, opErr
	})

	assert.ErrorIs(t, err, opErr)
	assert.Equal(t, int32(1), calls.Load(), "不可重试错误只应调用一次")
	assert.Zero(t, exec.QueueLen(), "不可重试错误不应入队")

	stats := exec.Stats()
	assert.Equal(t, int64(1), stats.FailedOperations)
	assert.Zero(t, stats.QueuedOperations)

	ev, ok := rec.last(EventOperationFailed)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Attempts)
	assert.ErrorIs(t, ev.Err, opErr)
}

// TestExecuteRetryThenSucceed 测试重试后成功
func TestExecuteRetryThenSucceed(t *testing.T) {
	rec := &eventRecorder{}
	exec := newTestExecutor(t, testConfig(), WithEventHandler(rec.record))

	var calls atomic.Int32
	result, err := exec.Execute(context.Background(), "rpc", func(ctx context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errOf("network error")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, int32(3), calls.Load())

	stats := exec.Stats()
	assert.Equal(t, int64(1), stats.SuccessfulOperations)
	assert.Equal(t, int64(1), stats.RetriedOperations)

	ev, ok := rec.last(EventOperationSuccess)
	require.True(t, ok)
	assert.Equal(t, 3, ev.Attempts)
}

// TestExecuteRetriesExhaustedThenQueued 测试重试耗尽后入队
func TestExecuteRetriesExhaustedThenQueued(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 100 // 本用例不关心熔断
	exec := newTestExecutor(t, cfg, WithEventHandler(rec.record))

	opErr := errOf("RATE_LIMITED")
	var calls atomic.Int32

	_, err := exec.Execute(context.Background(), "exchange", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, opErr
	})

	assert.ErrorIs(t, err, opErr, "入队不改变抛给调用方的错误")
	// 1 次首次调用 + MaxRetries 次重试
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, exec.QueueLen())

	stats := exec.Stats()
	assert.Equal(t, int64(1), stats.FailedOperations)
	assert.Equal(t, int64(1), stats.QueuedOperations)

	assert.Equal(t, 1, rec.count(EventOperationQueued))
	assert.Equal(t, 1, rec.count(EventOperationFailed))
}

// TestCircuitBreakerTripsAndRejects 测试熔断触发与拒绝语义
func TestCircuitBreakerTripsAndRejects(t *testing.T) {
	rec := &eventRecorder{}
	exec := newTestExecutor(t, testConfig(), WithEventHandler(rec.record))

	opErr := errOf("invalid signature")
	var calls atomic.Int32
	failing := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, opErr
	}

	// 阈值为 3，每次调用失败一次
	for i := 0; i < 3; i++ {
		_, err := exec.Execute(context.Background(), "ledger", failing)
		assert.ErrorIs(t, err, opErr)
	}

	health := exec.ServiceHealth("ledger")
	assert.Equal(t, StateOpen, health.State)
	assert.False(t, health.IsHealthy)
	require.NotNil(t, health.NextRecoveryTime)
	assert.Equal(t, 1, rec.count(EventCircuitOpened))
	assert.Equal(t, int64(1), exec.Stats().CircuitBreakerTrips)

	// 熔断打开后拒绝调用，操作本身不再被执行
	before := calls.Load()
	_, err := exec.Execute(context.Background(), "ledger", failing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "被拒绝的操作不应被调用")

	// 其他服务不受影响
	_, err = exec.Execute(context.Background(), "other", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
}

// TestCircuitBreakerRecovery 测试恢复窗口后的半开探测恢复
func TestCircuitBreakerRecovery(t *testing.T) {
	rec := &eventRecorder{}
	exec := newTestExecutor(t, testConfig(), WithEventHandler(rec.record))

	opErr := errOf("invalid signature")
	for i := 0; i < 3; i++ {
		_, _ = exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
			return nil, opErr
		})
	}
	require.Equal(t, StateOpen, exec.ServiceHealth("ledger").State)

	// 等待恢复窗口（50ms）到期
	time.Sleep(60 * time.Millisecond)

	result, err := exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)

	health := exec.ServiceHealth("ledger")
	assert.Equal(t, StateClosed, health.State)
	assert.True(t, health.IsHealthy)
	assert.Zero(t, health.FailureCount)
	assert.GreaterOrEqual(t, rec.count(EventCircuitReset), 1)
}

// TestResetCircuit 测试手动重置熔断器
func TestResetCircuit(t *testing.T) {
	rec := &eventRecorder{}
	exec := newTestExecutor(t, testConfig(), WithEventHandler(rec.record))

	for i := 0; i < 3; i++ {
		_, _ = exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
			return nil, errOf("invalid signature")
		})
	}
	require.Equal(t, StateOpen, exec.ServiceHealth("ledger").State)

	exec.ResetCircuit("ledger")

	health := exec.ServiceHealth("ledger")
	assert.Equal(t, StateClosed, health.State)
	assert.True(t, health.IsHealthy)
	assert.GreaterOrEqual(t, rec.count(EventCircuitReset), 1)

	// 不等恢复窗口，立即可用
	_, err := exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
}

// TestAllServicesHealth 测试全量健康快照
func TestAllServicesHealth(t *testing.T) {
	exec := newTestExecutor(t, testConfig())

	_, _ = exec.Execute(context.Background(), "a", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	_, _ = exec.Execute(context.Background(), "b", func(ctx context.Context) (any, error) {
		return nil, errOf("invalid signature")
	})

	all := exec.AllServicesHealth()
	require.Len(t, all, 2)
	assert.True(t, all["a"].IsHealthy)
	assert.Equal(t, 1, all["b"].FailureCount)
}

// TestQueuedOperationReplay 测试队列重放：失败重排与成功移除
func TestQueuedOperationReplay(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 100
	exec := newTestExecutor(t, cfg, WithEventHandler(rec.record))
	impl := exec.(*executorImpl)

	// 同步阶段 3 次调用（首次 + 2 次重试）全部失败，
	// 入队后前两次重放仍失败，第三次重放成功
	var calls atomic.Int32
	_, err := exec.Execute(context.Background(), "exchange", func(ctx context.Context) (any, error) {
		if calls.Add(1) <= 5 {
			return nil, errOf("service unavailable")
		}
		return "done", nil
	})
	require.Error(t, err)
	require.Equal(t, 1, exec.QueueLen())

	// 第一次重放：失败，按线性退避重新入队
	impl.processDue(time.Now().Add(time.Second))
	assert.Equal(t, 1, exec.QueueLen())
	assert.Zero(t, rec.count(EventQueuedOperationSuccess))

	// 第二次重放：仍失败，再次入队
	impl.processDue(time.Now().Add(time.Minute))
	assert.Equal(t, 1, exec.QueueLen())

	// 第三次重放：成功，条目移除
	impl.processDue(time.Now().Add(time.Hour))
	assert.Zero(t, exec.QueueLen())

	ev, ok := rec.last(EventQueuedOperationSuccess)
	require.True(t, ok)
	assert.Equal(t, "exchange", ev.Service)
	assert.Equal(t, 3, ev.Attempts)
	assert.Zero(t, rec.count(EventQueuedOperationFailed))
}

// TestQueuedOperationExhausted 测试队内重试耗尽后永久丢弃
func TestQueuedOperationExhausted(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 100
	exec := newTestExecutor(t, cfg, WithEventHandler(rec.record))
	impl := exec.(*executorImpl)

	opErr := errOf("RATE_LIMITED")
	_, err := exec.Execute(context.Background(), "exchange", func(ctx context.Context) (any, error) {
		return nil, opErr
	})
	require.Error(t, err)
	require.Equal(t, 1, exec.QueueLen())

	// MaxAttempts = 3：前两次重放失败后重新入队，第三次后永久丢弃
	impl.processDue(time.Now().Add(time.Second))
	impl.processDue(time.Now().Add(time.Minute))
	assert.Equal(t, 1, exec.QueueLen())

	impl.processDue(time.Now().Add(time.Hour))
	assert.Zero(t, exec.QueueLen())

	ev, ok := rec.last(EventQueuedOperationFailed)
	require.True(t, ok)
	assert.Equal(t, 3, ev.Attempts)
	assert.ErrorIs(t, ev.Err, opErr)
}

// TestClearQueue 测试清空队列
func TestClearQueue(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 100
	exec := newTestExecutor(t, cfg, WithEventHandler(rec.record))

	for i := 0; i < 2; i++ {
		_, _ = exec.Execute(context.Background(), "exchange", func(ctx context.Context) (any, error) {
			return nil, errOf("service unavailable")
		})
	}
	require.Equal(t, 2, exec.QueueLen())

	assert.Equal(t, 2, exec.ClearQueue())
	assert.Zero(t, exec.QueueLen())

	ev, ok := rec.last(EventQueueCleared)
	require.True(t, ok)
	assert.Equal(t, 2, ev.Count)
}

// TestUpdateConfig 测试运行时配置合并
func TestUpdateConfig(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 100
	exec := newTestExecutor(t, cfg, WithEventHandler(rec.record))

	exec.UpdateConfig(ConfigPatch{
		Retry: &RetryConfig{MaxRetries: 1},
		Classifier: &ClassifierConfig{
			NonRetryable: []string{"fatal"},
			Retryable:    []string{"wobbly"},
			RetryHints:   []string{},
			Queueable:    []string{},
		},
	})
	assert.Equal(t, 1, rec.count(EventConfigUpdated))

	// 新分类器生效：原可重试词不再命中，自定义词命中且只重试 1 次
	var calls atomic.Int32
	_, err := exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errOf("wobbly backend")
	})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "MaxRetries=1 时共调用 2 次")
	assert.Zero(t, exec.QueueLen(), "可入队集合被清空后不再入队")

	calls.Store(0)
	_, _ = exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errOf("network error")
	})
	assert.Equal(t, int32(1), calls.Load(), "未被新集合覆盖的错误不再重试")
}

// TestHealthCheck 测试聚合健康检查
func TestHealthCheck(t *testing.T) {
	exec := newTestExecutor(t, testConfig())

	t.Run("初始状态健康", func(t *testing.T) {
		report := exec.HealthCheck()
		assert.Equal(t, StatusHealthy, report.Status)
		assert.Empty(t, report.Issues)
	})

	t.Run("熔断打开后降级", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, _ = exec.Execute(context.Background(), "ledger", func(ctx context.Context) (any, error) {
				return nil, errOf("invalid signature")
			})
		}

		report := exec.HealthCheck()
		assert.Equal(t, StatusDegraded, report.Status)
		assert.NotEmpty(t, report.Issues)
		// 全部 3 次操作都失败，错误率问题同样在列
		assert.Greater(t, report.ErrorRate, 0.2)
	})
}

// TestExecuteContextCancelDuringBackoff 测试退避等待期间的 ctx 取消
func TestExecuteContextCancelDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.BaseDelay = 200 * time.Millisecond
	cfg.Circuit.FailureThreshold = 100
	exec := newTestExecutor(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	opErr := errOf("network error")
	var calls atomic.Int32

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := exec.Execute(ctx, "svc", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, opErr
	})

	assert.ErrorIs(t, err, opErr, "取消后返回最后一次操作错误")
	assert.Equal(t, int32(1), calls.Load(), "取消发生在首次退避期间，不应再重试")
	assert.Less(t, time.Since(start), 150*time.Millisecond, "取消应提前结束退避等待")
}

// TestCloseSemantics 测试关闭语义
func TestCloseSemantics(t *testing.T) {
	exec, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, exec.Close())
	require.NoError(t, exec.Close(), "重复关闭应幂等")

	_, err = exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}

// TestCloseDrainsDueEntries 测试关闭时对到期条目的最后排空
func TestCloseDrainsDueEntries(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 100
	cfg.Queue.RetryDelay = time.Nanosecond // 入队后立即到期
	exec, err := New(cfg, WithEventHandler(rec.record))
	require.NoError(t, err)

	// 同步阶段 3 次调用全部失败，关闭前的排空重放成功
	var replayed atomic.Bool
	var calls atomic.Int32
	_, execErr := exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		if calls.Add(1) <= 3 {
			return nil, errOf("busy")
		}
		replayed.Store(true)
		return "ok", nil
	})
	require.Error(t, execErr)
	require.Equal(t, 1, exec.QueueLen())

	require.NoError(t, exec.Close())
	assert.True(t, replayed.Load(), "关闭时应重放到期条目")
	assert.Equal(t, 1, rec.count(EventQueuedOperationSuccess))
}

// TestConcurrentExecutes 测试并发执行下熔断恰好触发一次
func TestConcurrentExecutes(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Circuit.FailureThreshold = 5
	exec := newTestExecutor(t, cfg, WithEventHandler(rec.record))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
				return nil, errOf("invalid signature")
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), exec.Stats().CircuitBreakerTrips)
	assert.Equal(t, 1, rec.count(EventCircuitOpened))
	assert.Equal(t, StateOpen, exec.ServiceHealth("svc").State)
}

// TestEventHandlerPanicRecovered 测试事件回调 panic 不影响执行流程
func TestEventHandlerPanicRecovered(t *testing.T) {
	exec := newTestExecutor(t, testConfig(), WithEventHandler(func(ev Event) {
		panic("handler exploded")
	}))

	result, err := exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

// TestNewWithNilConfig 测试 nil 配置走默认值
func TestNewWithNilConfig(t *testing.T) {
	exec, err := New(nil)
	require.NoError(t, err)
	defer exec.Close()

	result, err := exec.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
