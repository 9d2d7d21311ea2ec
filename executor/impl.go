package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zenithgo/resilience/clog"
	"github.com/zenithgo/resilience/metrics"
	"github.com/zenithgo/resilience/xerrors"
)

// executorImpl 弹性执行器实现（非导出）
type executorImpl struct {
	// cfgMu 保护 cfg 与 cls；Execute 在入口处取一次快照，
	// 单次调用内的策略保持一致
	cfgMu sync.RWMutex
	cfg   *Config
	cls   *classifier

	logger  clog.Logger
	meter   metrics.Meter
	handler EventHandler

	// 服务级熔断器，按服务名惰性创建，进程生命周期内不删除
	circuits sync.Map // map[string]*serviceCircuit

	queue deferredQueue

	// 进程级统计，允许最终一致（仅用于观测，不参与正确性决策）
	statTotal      atomic.Int64
	statSuccessful atomic.Int64
	statFailed     atomic.Int64
	statRetried    atomic.Int64
	statQueued     atomic.Int64
	statTrips      atomic.Int64

	processorRunning atomic.Bool
	closed           atomic.Bool
	stopCh           chan struct{}
	doneCh           chan struct{}
}

// newExecutor 创建执行器实例（内部函数）
// 注意：cfg 已在 New() 中通过 setDefaults() 填充默认值
func newExecutor(cfg *Config, logger clog.Logger, meter metrics.Meter, handler EventHandler) (Executor, error) {
	e := &executorImpl{
		cfg:     cfg,
		cls:     newClassifier(cfg.Classifier),
		logger:  logger,
		meter:   meter,
		handler: handler,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go e.processLoop()

	logger.Info("resilient executor created",
		clog.Int("max_retries", cfg.Retry.MaxRetries),
		clog.Duration("base_delay", cfg.Retry.BaseDelay),
		clog.Int("failure_threshold", cfg.Circuit.FailureThreshold),
		clog.Duration("recovery_timeout", cfg.Circuit.RecoveryTimeout),
		clog.Int("queue_max_size", cfg.Queue.MaxSize),
		clog.Duration("process_interval", cfg.Queue.ProcessInterval))

	return e, nil
}

// policy 获取当前配置与分类器的一致快照
func (e *executorImpl) policy() (Config, *classifier) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return *e.cfg, e.cls
}

// circuit 获取或创建服务级熔断器
func (e *executorImpl) circuit(serviceName string) *serviceCircuit {
	if val, ok := e.circuits.Load(serviceName); ok {
		return val.(*serviceCircuit)
	}

	// 可能有并发创建，使用 LoadOrStore
	actual, _ := e.circuits.LoadOrStore(serviceName, &serviceCircuit{})
	return actual.(*serviceCircuit)
}

// Execute 执行受熔断与重试保护的操作
func (e *executorImpl) Execute(ctx context.Context, serviceName string, op Operation) (any, error) {
	if serviceName == "" {
		return nil, ErrServiceNameEmpty
	}
	if op == nil {
		return nil, ErrOperationNil
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, cls := e.policy()
	circuit := e.circuit(serviceName)

	e.statTotal.Add(1)
	e.count(ctx, MetricOperationsTotal, "Operations entering the executor", serviceName)

	// 准入检查：拒绝时操作不会被调用，也不计入重试
	if err := circuit.allow(cfg.Circuit); err != nil {
		e.count(ctx, MetricRejectsTotal, "Operations rejected by the circuit breaker", serviceName)
		e.logger.Warn("call rejected, circuit breaker open",
			clog.String("service", serviceName))
		return nil, xerrors.Wrapf(err, "service %q unavailable", serviceName)
	}

	start := time.Now()
	var lastErr error
	attempt := 0

	for {
		result, err := op(ctx)
		if err == nil {
			if circuit.success() {
				e.logger.Info("circuit breaker reset",
					clog.String("service", serviceName))
				e.countTransition(ctx, serviceName, StateHalfOpen, StateClosed)
				e.emit(Event{Type: EventCircuitReset, Service: serviceName, Time: time.Now()})
			}
			e.statSuccessful.Add(1)
			if attempt > 0 {
				e.statRetried.Add(1)
				e.count(ctx, MetricRetriesTotal, "Operations that succeeded only after retrying", serviceName)
			}
			e.count(ctx, MetricSuccessTotal, "Successful operations", serviceName)
			e.observeDuration(ctx, serviceName, time.Since(start), metrics.OutcomeSuccess)
			e.emit(Event{Type: EventOperationSuccess, Service: serviceName, Attempts: attempt + 1, Time: time.Now()})
			return result, nil
		}

		lastErr = err
		attempt++

		if circuit.failure(cfg.Circuit) {
			e.statTrips.Add(1)
			e.logger.Warn("circuit breaker opened",
				clog.String("service", serviceName),
				clog.Int("failure_count", cfg.Circuit.FailureThreshold),
				clog.Error(err))
			e.countTransition(ctx, serviceName, StateClosed, StateOpen)
			e.emit(Event{Type: EventCircuitOpened, Service: serviceName, Err: err, Time: time.Now()})
		}

		if attempt <= cfg.Retry.MaxRetries && cls.retryableError(err) {
			delay := backoffDelay(attempt, cfg.Retry)
			e.logger.Debug("retrying after backoff",
				clog.String("service", serviceName),
				clog.Int("attempt", attempt),
				clog.Duration("delay", delay),
				clog.Error(err))
			if !sleep(ctx, delay) {
				// ctx 取消，放弃剩余重试，走终态失败路径
				break
			}
			continue
		}
		break
	}

	e.statFailed.Add(1)
	e.count(ctx, MetricFailuresTotal, "Operations that failed terminally", serviceName)
	e.observeDuration(ctx, serviceName, time.Since(start), metrics.OutcomeError)

	// 入队是尽力而为的补偿通道，错误仍会原样抛给调用方
	if cls.queueableError(lastErr) {
		e.enqueue(ctx, serviceName, op, lastErr, cfg.Queue)
	}

	e.logger.Warn("operation failed after retries",
		clog.String("service", serviceName),
		clog.Int("attempts", attempt),
		clog.Error(lastErr))
	e.emit(Event{Type: EventOperationFailed, Service: serviceName, Err: lastErr, Attempts: attempt, Time: time.Now()})

	return nil, lastErr
}

// sleep 等待退避时长；ctx 取消时提前返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// enqueue 把终态失败但可入队的操作交给延迟队列
func (e *executorImpl) enqueue(ctx context.Context, serviceName string, op Operation, cause error, qcfg QueueConfig) {
	now := time.Now()
	entry := &queuedOperation{
		id:          newOperationID(serviceName, now),
		serviceName: serviceName,
		op:          op,
		enqueuedAt:  now,
		maxAttempts: qcfg.MaxAttempts,
		nextRetryAt: now.Add(qcfg.RetryDelay),
	}

	if evicted := e.queue.push(entry, qcfg.MaxSize); evicted != nil {
		e.logger.Warn("deferred queue full, evicted oldest entry",
			clog.String("evicted_id", evicted.id),
			clog.String("evicted_service", evicted.serviceName))
	}

	e.statQueued.Add(1)
	e.count(ctx, MetricQueuedTotal, "Operations handed to the deferred queue", serviceName)
	e.gaugeQueueDepth(ctx)

	e.logger.Info("operation deferred for later retry",
		clog.String("service", serviceName),
		clog.String("id", entry.id),
		clog.Time("next_retry_at", entry.nextRetryAt),
		clog.Error(cause))
	e.emit(Event{Type: EventOperationQueued, Service: serviceName, Err: cause, Time: now})
}

// processLoop 后台队列处理器：单 worker，扫描-重放与 enqueue 互斥
func (e *executorImpl) processLoop() {
	defer close(e.doneCh)

	e.processorRunning.Store(true)
	defer e.processorRunning.Store(false)

	for {
		cfg, _ := e.policy()
		timer := time.NewTimer(cfg.Queue.ProcessInterval)

		select {
		case <-timer.C:
			e.processDue(time.Now())
		case <-e.stopCh:
			timer.Stop()
			// 优雅关闭：对到期条目做最后一次排空（尽力而为）
			e.processDue(time.Now())
			return
		}
	}
}

// processDue 重放所有到期条目
// 失败且未达 maxAttempts 的条目按线性退避重新入队（队尾），
// 重试耗尽的条目被永久丢弃并转为通知，不再有同步调用方可接收错误
func (e *executorImpl) processDue(now time.Time) {
	cfg, _ := e.policy()
	due := e.queue.takeDue(now)
	if len(due) == 0 {
		return
	}

	ctx := context.Background()
	e.logger.Debug("processing due queue entries", clog.Int("count", len(due)))

	for _, entry := range due {
		entry.attempts++

		_, err := entry.op(ctx)
		if err == nil {
			e.logger.Info("queued operation succeeded",
				clog.String("service", entry.serviceName),
				clog.String("id", entry.id),
				clog.Int("attempts", entry.attempts))
			e.emit(Event{Type: EventQueuedOperationSuccess, Service: entry.serviceName, Attempts: entry.attempts, Time: now})
			continue
		}

		if entry.attempts < entry.maxAttempts {
			entry.nextRetryAt = now.Add(time.Duration(entry.attempts) * cfg.Queue.RetryBackoff)
			e.queue.push(entry, cfg.Queue.MaxSize)
			e.logger.Debug("queued operation failed, rescheduled",
				clog.String("service", entry.serviceName),
				clog.String("id", entry.id),
				clog.Int("attempts", entry.attempts),
				clog.Time("next_retry_at", entry.nextRetryAt),
				clog.Error(err))
			continue
		}

		e.logger.Warn("queued operation failed permanently",
			clog.String("service", entry.serviceName),
			clog.String("id", entry.id),
			clog.Int("attempts", entry.attempts),
			clog.Error(err))
		e.emit(Event{Type: EventQueuedOperationFailed, Service: entry.serviceName, Err: err, Attempts: entry.attempts, Time: now})
	}

	e.gaugeQueueDepth(ctx)
}

// ServiceHealth 获取指定服务的健康快照
func (e *executorImpl) ServiceHealth(serviceName string) ServiceHealth {
	cfg, _ := e.policy()
	return e.circuit(serviceName).health(serviceName, cfg.Circuit)
}

// AllServicesHealth 获取所有已知服务的健康快照
func (e *executorImpl) AllServicesHealth() map[string]ServiceHealth {
	cfg, _ := e.policy()
	out := make(map[string]ServiceHealth)

	e.circuits.Range(func(key, value any) bool {
		name := key.(string)
		out[name] = value.(*serviceCircuit).health(name, cfg.Circuit)
		return true
	})
	return out
}

// ResetCircuit 手动将指定服务的熔断器重置为闭合状态
func (e *executorImpl) ResetCircuit(serviceName string) {
	circuit := e.circuit(serviceName)
	from := circuit.currentState()
	circuit.reset()

	e.logger.Info("circuit breaker manually reset",
		clog.String("service", serviceName),
		clog.String("from", from.String()))
	e.countTransition(context.Background(), serviceName, from, StateClosed)
	e.emit(Event{Type: EventCircuitReset, Service: serviceName, Time: time.Now()})
}

// Stats 获取进程级累计统计
func (e *executorImpl) Stats() Stats {
	return Stats{
		TotalOperations:      e.statTotal.Load(),
		SuccessfulOperations: e.statSuccessful.Load(),
		FailedOperations:     e.statFailed.Load(),
		RetriedOperations:    e.statRetried.Load(),
		QueuedOperations:     e.statQueued.Load(),
		CircuitBreakerTrips:  e.statTrips.Load(),
	}
}

// QueueLen 获取延迟队列当前长度
func (e *executorImpl) QueueLen() int {
	return e.queue.size()
}

// ClearQueue 清空延迟队列，返回被丢弃的条目数
func (e *executorImpl) ClearQueue() int {
	n := e.queue.clear()
	e.gaugeQueueDepth(context.Background())

	e.logger.Info("deferred queue cleared", clog.Int("discarded", n))
	e.emit(Event{Type: EventQueueCleared, Count: n, Time: time.Now()})
	return n
}

// UpdateConfig 运行时合并部分配置
func (e *executorImpl) UpdateConfig(patch ConfigPatch) {
	e.cfgMu.Lock()
	merged := e.cfg.merge(patch)
	merged.setDefaults()
	e.cfg = merged
	e.cls = newClassifier(merged.Classifier)
	e.cfgMu.Unlock()

	e.logger.Info("executor config updated")
	e.emit(Event{Type: EventConfigUpdated, Time: time.Now()})
}

// HealthCheck 聚合健康检查
//
// 存在任一问题即为 degraded，同时存在三个以上问题时为 unhealthy。
func (e *executorImpl) HealthCheck() HealthReport {
	cfg, _ := e.policy()

	var issues []string

	queueLen := e.queue.size()
	if cfg.Queue.MaxSize > 0 && queueLen*100 > cfg.Queue.MaxSize*80 {
		issues = append(issues, fmt.Sprintf("deferred queue at %d/%d entries", queueLen, cfg.Queue.MaxSize))
	}

	e.circuits.Range(func(key, value any) bool {
		if value.(*serviceCircuit).currentState() == StateOpen {
			issues = append(issues, fmt.Sprintf("circuit open for service %q", key.(string)))
		}
		return true
	})

	total := e.statTotal.Load()
	failed := e.statFailed.Load()
	var errorRate float64
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}
	if errorRate > 0.2 {
		issues = append(issues, fmt.Sprintf("error rate %.1f%% exceeds 20%%", errorRate*100))
	}

	if !e.processorRunning.Load() {
		issues = append(issues, "queue processor not running")
	}

	status := StatusHealthy
	switch {
	case len(issues) > 3:
		status = StatusUnhealthy
	case len(issues) > 0:
		status = StatusDegraded
	}

	return HealthReport{
		Status:    status,
		Issues:    issues,
		QueueLen:  queueLen,
		ErrorRate: errorRate,
	}
}

// Close 停止后台处理器，关闭前对到期条目做最后一次排空
func (e *executorImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(e.stopCh)
	<-e.doneCh

	e.logger.Info("executor closed", clog.Int("queue_remaining", e.queue.size()))
	return nil
}

// emit 同步投递事件，回调中的 panic 被捕获并记录
func (e *executorImpl) emit(ev Event) {
	if e.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				clog.String("event", string(ev.Type)),
				clog.Any("panic", r))
		}
	}()
	e.handler(ev)
}

// ========================================
// 指标辅助 (Metrics Helpers)
// ========================================

// count 记录计数器指标
func (e *executorImpl) count(ctx context.Context, name, desc, serviceName string) {
	if e.meter == nil {
		return
	}
	if counter, err := e.meter.Counter(name, desc); err == nil && counter != nil {
		counter.Inc(ctx, metrics.L(metrics.LabelService, serviceName))
	}
}

// countTransition 记录熔断状态变更指标
func (e *executorImpl) countTransition(ctx context.Context, serviceName string, from, to State) {
	if e.meter == nil {
		return
	}
	if counter, err := e.meter.Counter(MetricCircuitTransitions, "Circuit breaker state changes"); err == nil && counter != nil {
		counter.Inc(ctx,
			metrics.L(metrics.LabelService, serviceName),
			metrics.L(LabelFromState, from.String()),
			metrics.L(LabelToState, to.String()))
	}
}

// observeDuration 记录操作耗时指标
func (e *executorImpl) observeDuration(ctx context.Context, serviceName string, d time.Duration, outcome string) {
	if e.meter == nil {
		return
	}
	if histogram, err := e.meter.Histogram(MetricOperationDuration, "Operation duration including retries", metrics.WithUnit("seconds")); err == nil && histogram != nil {
		histogram.Record(ctx, d.Seconds(),
			metrics.L(metrics.LabelService, serviceName),
			metrics.L(metrics.LabelOutcome, outcome))
	}
}

// gaugeQueueDepth 更新队列深度指标
func (e *executorImpl) gaugeQueueDepth(ctx context.Context) {
	if e.meter == nil {
		return
	}
	if gauge, err := e.meter.Gauge(MetricQueueDepth, "Current deferred queue depth"); err == nil && gauge != nil {
		gauge.Set(ctx, float64(e.queue.size()))
	}
}
