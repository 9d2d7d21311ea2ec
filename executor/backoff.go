package executor

import (
	"math"
	"math/rand"
	"time"
)

// backoffDelay 计算第 attempt 次重试前的退避时长（attempt 从 1 开始）
//
// exponential = BaseDelay * Multiplier^(attempt-1)
// capped      = min(exponential, MaxDelay)
// jitter      = capped * JitterFactor * rand[0,1)
//
// 抖动只增不减：所有延迟都轻微偏高，避免到达上限后的重试风暴对齐，
// 且永远不会低于无抖动的下界。
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	exponential := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	capped := math.Min(exponential, float64(cfg.MaxDelay))
	jitter := capped * cfg.JitterFactor * rand.Float64()

	return time.Duration(capped + jitter)
}
