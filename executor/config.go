package executor

import "time"

// RetryConfig 同步重试策略
type RetryConfig struct {
	// MaxRetries 首次调用之外的最大重试次数（默认：5）
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// BaseDelay 首次重试前的基础退避时长（默认：1s）
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay 单次退避时长上限（默认：30s）
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`

	// Multiplier 指数退避倍率（默认：2）
	Multiplier float64 `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`

	// JitterFactor 抖动系数，抖动只增不减，避免重试风暴对齐（默认：0.1）
	JitterFactor float64 `json:"jitter_factor" yaml:"jitter_factor" mapstructure:"jitter_factor"`
}

// CircuitConfig 熔断策略
type CircuitConfig struct {
	// FailureThreshold 连续失败计数达到该值时熔断（默认：5）
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// RecoveryTimeout 熔断打开后等待该时长转入半开探测（默认：60s）
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" mapstructure:"recovery_timeout"`

	// HalfOpenMaxCalls 半开状态允许放行的最大探测请求数（默认：3）
	HalfOpenMaxCalls int `json:"half_open_max_calls" yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
}

// QueueConfig 延迟重试队列策略
type QueueConfig struct {
	// MaxSize 队列容量；满员时淘汰最早入队的条目（默认：1000）
	MaxSize int `json:"max_size" yaml:"max_size" mapstructure:"max_size"`

	// ProcessInterval 后台处理器扫描间隔（默认：30s）
	ProcessInterval time.Duration `json:"process_interval" yaml:"process_interval" mapstructure:"process_interval"`

	// RetryDelay 入队后首次重试的等待时长（默认：60s）
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`

	// RetryBackoff 队内重试的线性退避步长：第 n 次失败后等待 n*RetryBackoff。
	// 刻意区别于同步重试的指数退避，把负载摊到更长的时间窗口（默认：120s）
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff" mapstructure:"retry_backoff"`

	// MaxAttempts 队内最大重试次数，超出后永久丢弃（默认：3）
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ClassifierConfig 错误分类模式集
//
// 匹配方式为大小写不敏感的子串匹配，下划线按空格归一
// （"RATE_LIMITED" 能命中 "rate limited"）。
// 集合内容是策略而非逻辑，按需在配置中覆盖。
type ClassifierConfig struct {
	// NonRetryable 不可重试模式：命中后立即终止，优先级最高
	NonRetryable []string `json:"non_retryable" yaml:"non_retryable" mapstructure:"non_retryable"`

	// Retryable 可重试模式：值得在当次调用内继续重试
	Retryable []string `json:"retryable" yaml:"retryable" mapstructure:"retryable"`

	// RetryHints 兜底启发词：未命中任何显式模式时按这些通用词判定可重试
	RetryHints []string `json:"retry_hints" yaml:"retry_hints" mapstructure:"retry_hints"`

	// Queueable 可入队模式：比 Retryable 更窄的子集。
	// 入队后操作会在无调用方监督的情况下被重放，只有大概率自愈的
	// 错误才值得入队
	Queueable []string `json:"queueable" yaml:"queueable" mapstructure:"queueable"`
}

// Config 执行器配置
type Config struct {
	Retry      RetryConfig      `json:"retry" yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `json:"circuit" yaml:"circuit" mapstructure:"circuit"`
	Queue      QueueConfig      `json:"queue" yaml:"queue" mapstructure:"queue"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries:   5,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			JitterFactor: 0.1,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			HalfOpenMaxCalls: 3,
		},
		Queue: QueueConfig{
			MaxSize:         1000,
			ProcessInterval: 30 * time.Second,
			RetryDelay:      60 * time.Second,
			RetryBackoff:    120 * time.Second,
			MaxAttempts:     3,
		},
		Classifier: defaultClassifierConfig(),
	}
}

// defaultClassifierConfig 默认错误分类策略
func defaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		NonRetryable: []string{
			"invalid signature",
			"insufficient funds",
			"invalid account",
			"invalid transaction",
			"invalid argument",
			"unauthorized",
			"authorization failed",
		},
		Retryable: []string{
			"network error",
			"timeout",
			"rate limited",
			"temporary failure",
			"connection error",
			"service unavailable",
			"busy",
		},
		RetryHints: []string{
			"network",
			"timeout",
			"connection",
			"unavailable",
		},
		Queueable: []string{
			"network error",
			"timeout",
			"rate limited",
			"service unavailable",
			"busy",
		},
	}
}

// setDefaults 为零值字段填充默认值
func (c *Config) setDefaults() {
	def := DefaultConfig()

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}
	if c.Retry.JitterFactor == 0 {
		c.Retry.JitterFactor = def.Retry.JitterFactor
	}

	if c.Circuit.FailureThreshold == 0 {
		c.Circuit.FailureThreshold = def.Circuit.FailureThreshold
	}
	if c.Circuit.RecoveryTimeout == 0 {
		c.Circuit.RecoveryTimeout = def.Circuit.RecoveryTimeout
	}
	if c.Circuit.HalfOpenMaxCalls == 0 {
		c.Circuit.HalfOpenMaxCalls = def.Circuit.HalfOpenMaxCalls
	}

	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = def.Queue.MaxSize
	}
	if c.Queue.ProcessInterval == 0 {
		c.Queue.ProcessInterval = def.Queue.ProcessInterval
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = def.Queue.RetryDelay
	}
	if c.Queue.RetryBackoff == 0 {
		c.Queue.RetryBackoff = def.Queue.RetryBackoff
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = def.Queue.MaxAttempts
	}

	if c.Classifier.NonRetryable == nil {
		c.Classifier.NonRetryable = def.Classifier.NonRetryable
	}
	if c.Classifier.Retryable == nil {
		c.Classifier.Retryable = def.Classifier.Retryable
	}
	if c.Classifier.RetryHints == nil {
		c.Classifier.RetryHints = def.Classifier.RetryHints
	}
	if c.Classifier.Queueable == nil {
		c.Classifier.Queueable = def.Classifier.Queueable
	}
}

// ConfigPatch 部分配置更新
// 非 nil 的段落会被合并进当前配置；段落内部按非零值字段覆盖
type ConfigPatch struct {
	Retry      *RetryConfig      `json:"retry,omitempty" yaml:"retry,omitempty" mapstructure:"retry"`
	Circuit    *CircuitConfig    `json:"circuit,omitempty" yaml:"circuit,omitempty" mapstructure:"circuit"`
	Queue      *QueueConfig      `json:"queue,omitempty" yaml:"queue,omitempty" mapstructure:"queue"`
	Classifier *ClassifierConfig `json:"classifier,omitempty" yaml:"classifier,omitempty" mapstructure:"classifier"`
}

// merge 合并补丁并返回新配置，原配置不被修改
func (c *Config) merge(patch ConfigPatch) *Config {
	merged := *c

	if patch.Retry != nil {
		merged.Retry = mergeRetry(merged.Retry, *patch.Retry)
	}
	if patch.Circuit != nil {
		merged.Circuit = mergeCircuit(merged.Circuit, *patch.Circuit)
	}
	if patch.Queue != nil {
		merged.Queue = mergeQueue(merged.Queue, *patch.Queue)
	}
	if patch.Classifier != nil {
		merged.Classifier = mergeClassifier(merged.Classifier, *patch.Classifier)
	}

	return &merged
}

// mergeRetry 非零值字段覆盖默认值
func mergeRetry(base, patch RetryConfig) RetryConfig {
	if patch.MaxRetries > 0 {
		base.MaxRetries = patch.MaxRetries
	}
	if patch.BaseDelay > 0 {
		base.BaseDelay = patch.BaseDelay
	}
	if patch.MaxDelay > 0 {
		base.MaxDelay = patch.MaxDelay
	}
	if patch.Multiplier > 0 {
		base.Multiplier = patch.Multiplier
	}
	if patch.JitterFactor > 0 {
		base.JitterFactor = patch.JitterFactor
	}
	return base
}

func mergeCircuit(base, patch CircuitConfig) CircuitConfig {
	if patch.FailureThreshold > 0 {
		base.FailureThreshold = patch.FailureThreshold
	}
	if patch.RecoveryTimeout > 0 {
		base.RecoveryTimeout = patch.RecoveryTimeout
	}
	if patch.HalfOpenMaxCalls > 0 {
		base.HalfOpenMaxCalls = patch.HalfOpenMaxCalls
	}
	return base
}

func mergeQueue(base, patch QueueConfig) QueueConfig {
	if patch.MaxSize > 0 {
		base.MaxSize = patch.MaxSize
	}
	if patch.ProcessInterval > 0 {
		base.ProcessInterval = patch.ProcessInterval
	}
	if patch.RetryDelay > 0 {
		base.RetryDelay = patch.RetryDelay
	}
	if patch.RetryBackoff > 0 {
		base.RetryBackoff = patch.RetryBackoff
	}
	if patch.MaxAttempts > 0 {
		base.MaxAttempts = patch.MaxAttempts
	}
	return base
}

func mergeClassifier(base, patch ClassifierConfig) ClassifierConfig {
	if patch.NonRetryable != nil {
		base.NonRetryable = patch.NonRetryable
	}
	if patch.Retryable != nil {
		base.Retryable = patch.Retryable
	}
	if patch.RetryHints != nil {
		base.RetryHints = patch.RetryHints
	}
	if patch.Queueable != nil {
		base.Queueable = patch.Queueable
	}
	return base
}
