package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// queuedOperation 延迟队列条目（非导出）
// 入队后操作的所有权归队列，直到成功、重试耗尽或被淘汰
type queuedOperation struct {
	id          string
	serviceName string
	op          Operation
	enqueuedAt  time.Time
	attempts    int
	maxAttempts int
	nextRetryAt time.Time
}

// newOperationID 生成条目标识：服务名 + 入队毫秒时间戳 + 随机后缀
func newOperationID(serviceName string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", serviceName, now.UnixMilli(), uuid.NewString()[:8])
}

// deferredQueue 有界 FIFO 延迟队列（非导出）
//
// 所有对底层切片的访问都在 mu 临界区内，enqueue 与后台处理器的
// 扫描-重放互斥。
type deferredQueue struct {
	mu      sync.Mutex
	entries []*queuedOperation
}

// push 入队；队列满员时先淘汰最早入队的条目（FIFO 淘汰）
// 返回被淘汰的条目，未发生淘汰时返回 nil
func (q *deferredQueue) push(entry *queuedOperation, maxSize int) *queuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted *queuedOperation
	if maxSize > 0 && len(q.entries) >= maxSize {
		evicted = q.entries[0]
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
	return evicted
}

// takeDue 取出所有到期条目并从队列中移除
func (q *deferredQueue) takeDue(now time.Time) []*queuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*queuedOperation
	remaining := q.entries[:0]
	for _, entry := range q.entries {
		if !entry.nextRetryAt.After(now) {
			due = append(due, entry)
		} else {
			remaining = append(remaining, entry)
		}
	}
	q.entries = remaining
	return due
}

// size 当前队列长度
func (q *deferredQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// clear 清空队列，返回被丢弃的条目数
func (q *deferredQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	q.entries = nil
	return n
}
