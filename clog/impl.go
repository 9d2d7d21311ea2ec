package clog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// NamespaceKey 是日志中命名空间的字段名
const NamespaceKey = "namespace"

// loggerImpl 是 Logger 接口的具体实现
type loggerImpl struct {
	handler   slog.Handler
	levelVar  *slog.LevelVar
	namespace string
	baseAttrs []slog.Attr
}

// newLogger 创建 Logger 实例（内部使用）
func newLogger(config *Config, o *options) (Logger, error) {
	w, err := resolveWriter(config, o)
	if err != nil {
		return nil, err
	}

	levelVar := new(slog.LevelVar)
	lvl, _ := ParseLevel(config.Level)
	levelVar.Set(lvl.toSlogLevel())

	handlerOpts := &slog.HandlerOptions{
		AddSource: config.AddSource,
		Level:     levelVar,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return &loggerImpl{
		handler:   handler,
		levelVar:  levelVar,
		namespace: strings.Join(o.namespaceParts, "."),
	}, nil
}

// resolveWriter 根据配置创建输出 writer（内部使用）
func resolveWriter(config *Config, o *options) (io.Writer, error) {
	if o.writer != nil {
		return o.writer, nil
	}
	switch config.Output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

func (l *loggerImpl) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *loggerImpl) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *loggerImpl) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *loggerImpl) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

func (l *loggerImpl) With(fields ...Field) Logger {
	child := *l
	child.baseAttrs = append(append([]slog.Attr{}, l.baseAttrs...), fields...)
	return &child
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	child := *l
	joined := strings.Join(parts, ".")
	if l.namespace != "" && joined != "" {
		child.namespace = l.namespace + "." + joined
	} else if joined != "" {
		child.namespace = joined
	}
	return &child
}

// SetLevel 运行时调整日志级别，所有派生的子 Logger 同步生效
func (l *loggerImpl) SetLevel(level Level) error {
	l.levelVar.Set(level.toSlogLevel())
	return nil
}

// log 组装日志记录并交给底层 handler（内部使用）
func (l *loggerImpl) log(level Level, msg string, fields ...Field) {
	slogLevel := level.toSlogLevel()
	ctx := context.Background()
	if !l.handler.Enabled(ctx, slogLevel) {
		return
	}

	attrs := make([]slog.Attr, 0, len(l.baseAttrs)+len(fields)+1)
	attrs = append(attrs, l.baseAttrs...)
	attrs = append(attrs, fields...)
	if l.namespace != "" {
		attrs = append(attrs, slog.String(NamespaceKey, l.namespace))
	}

	// 获取正确的调用方 PC 值，确保 AddSource 指向业务代码
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), slogLevel, msg, pcs[0])
	record.AddAttrs(attrs...)

	_ = l.handler.Handle(ctx, record)
}
