package executor

import "strings"

// classifier 错误分类器（非导出）
//
// 三层判定，优先级从高到低：
//  1. 不可重试模式命中 → 立即终止，既不重试也不入队
//  2. 可重试 / 可入队模式命中 → 按集合归属判定
//  3. 兜底启发词命中 → 视为可重试但不可入队
//
// 未命中任何模式的错误按不可重试处理（fail-closed）。
type classifier struct {
	nonRetryable []string
	retryable    []string
	retryHints   []string
	queueable    []string
}

// newClassifier 由配置构建分类器，模式在构建期归一化
func newClassifier(cfg ClassifierConfig) *classifier {
	return &classifier{
		nonRetryable: normalizePatterns(cfg.NonRetryable),
		retryable:    normalizePatterns(cfg.Retryable),
		retryHints:   normalizePatterns(cfg.RetryHints),
		queueable:    normalizePatterns(cfg.Queueable),
	}
}

// retryableError 判定错误是否值得同步重试
func (c *classifier) retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := normalizeMessage(err.Error())

	if matchAny(msg, c.nonRetryable) {
		return false
	}
	if matchAny(msg, c.retryable) {
		return true
	}
	return matchAny(msg, c.retryHints)
}

// queueableError 判定错误是否值得入队延迟重放
// 可入队集合刻意窄于可重试集合：入队后重放没有调用方监督，
// 只有大概率自愈的错误才值得入队
func (c *classifier) queueableError(err error) bool {
	if err == nil {
		return false
	}
	msg := normalizeMessage(err.Error())

	if matchAny(msg, c.nonRetryable) {
		return false
	}
	return matchAny(msg, c.queueable)
}

// normalizeMessage 归一化错误消息：小写，下划线折算为空格
// 使 "RATE_LIMITED" 能命中 "rate limited" 模式
func normalizeMessage(msg string) string {
	return strings.ReplaceAll(strings.ToLower(msg), "_", " ")
}

// normalizePatterns 对模式集做同样的归一化
func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		out = append(out, normalizeMessage(p))
	}
	return out
}

// matchAny 大小写不敏感的子串匹配
func matchAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
