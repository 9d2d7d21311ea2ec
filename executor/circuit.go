package executor

import (
	"sync"
	"time"
)

// serviceCircuit 单个服务的熔断器状态机（非导出）
//
// 所有读-改-写序列都在 mu 临界区内完成：两个并发失败不可能都观察到
// failureCount == threshold-1 而漏掉熔断，也不可能重复触发熔断计数。
type serviceCircuit struct {
	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	halfOpenCalls int
}

// allow 准入检查，在操作执行之前调用一次
//
// CLOSED 直接放行；OPEN 在恢复窗口到期后转入 HALF_OPEN 并放行当前
// 调用，否则拒绝；HALF_OPEN 在探测额度内放行（放行前递增计数），
// 超额与 OPEN 同样方式拒绝。
func (c *serviceCircuit) allow(cfg CircuitConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(c.lastFailure) >= cfg.RecoveryTimeout {
			c.state = StateHalfOpen
			c.halfOpenCalls = 1 // 重置后放行当前调用
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if c.halfOpenCalls >= cfg.HalfOpenMaxCalls {
			return ErrCircuitOpen
		}
		c.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

// success 记录一次成功，强制回到闭合状态并清零计数
// 返回值表示是否发生了状态恢复（原状态不是 CLOSED）
func (c *serviceCircuit) success() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	recovered := c.state != StateClosed
	c.state = StateClosed
	c.failureCount = 0
	c.halfOpenCalls = 0
	return recovered
}

// failure 记录一次失败
// 失败计数达到阈值时（CLOSED 或 HALF_OPEN 下）转入 OPEN，
// 返回值表示本次调用是否触发了熔断
func (c *serviceCircuit) failure(cfg CircuitConfig) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	c.lastFailure = time.Now()

	if c.state != StateOpen && c.failureCount >= cfg.FailureThreshold {
		c.state = StateOpen
		return true
	}
	return false
}

// reset 手动重置为闭合状态并清零计数（运维用，不依赖流量）
func (c *serviceCircuit) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateClosed
	c.failureCount = 0
	c.halfOpenCalls = 0
}

// currentState 获取当前状态
func (c *serviceCircuit) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// health 构建健康快照
func (c *serviceCircuit) health(service string, cfg CircuitConfig) ServiceHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := ServiceHealth{
		Service:         service,
		State:           c.state,
		StateName:       c.state.String(),
		FailureCount:    c.failureCount,
		LastFailureTime: c.lastFailure,
		IsHealthy:       c.state == StateClosed,
	}
	if c.state == StateOpen {
		next := c.lastFailure.Add(cfg.RecoveryTimeout)
		h.NextRecoveryTime = &next
	}
	return h
}
