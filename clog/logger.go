package clog

// Logger 日志接口，提供结构化日志记录功能
//
// 支持四个日志级别：Debug、Info、Warn、Error。
//
// 创建子 Logger：
//
//	child := logger.With(clog.String("module", "queue"))
//	namespaced := logger.WithNamespace("executor")
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger，预设字段出现在所有日志中
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger
	// 命名空间以 "." 连接，作为日志中的 namespace 字段
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时动态调整日志级别
	SetLevel(level Level) error
}
