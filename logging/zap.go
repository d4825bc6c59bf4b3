package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerProvider 将日志转发到 zap
type ZapLoggerProvider struct {
	logger       *zap.Logger
	minimumLevel atomic.Int32
}

// NewZapLoggerProvider 基于已有的 zap.Logger 创建提供者
func NewZapLoggerProvider(logger *zap.Logger) *ZapLoggerProvider {
	p := &ZapLoggerProvider{logger: logger}
	p.minimumLevel.Store(int32(LogLevelInfo))
	return p
}

func (p *ZapLoggerProvider) Write(entry *LogEntry) {
	if entry.Level < LogLevel(p.minimumLevel.Load()) {
		return
	}

	fields := make([]zap.Field, 0, len(entry.Fields)+1)
	if entry.Category != "" {
		fields = append(fields, zap.String("category", entry.Category))
	}
	for _, f := range entry.Fields {
		if err, ok := f.Value.(error); ok {
			fields = append(fields, zap.NamedError(f.Key, err))
			continue
		}
		fields = append(fields, zap.Any(f.Key, f.Value))
	}

	if ce := p.logger.Check(zapLevel(entry.Level), entry.Message); ce != nil {
		ce.Write(fields...)
	}
}

func (p *ZapLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.minimumLevel.Store(int32(level))
}

// Sync 刷新 zap 缓冲
func (p *ZapLoggerProvider) Sync() error {
	return p.logger.Sync()
}

// zapLevel Trace 没有对应级别，降级为 Debug；Fatal 由 compositeLogger 负责退出
func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
