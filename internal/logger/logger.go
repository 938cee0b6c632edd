package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger 构建全局日志器，无法识别的级别按 info 处理
func InitLogger(logLevel string) {
	lgr, err := NewLogger(logLevel)
	if err != nil {
		panic(fmt.Errorf("构建日志器失败: %w", err))
	}

	zap.ReplaceGlobals(lgr)
}

func NewLogger(logLevel string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()

	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level.SetLevel(level)

	// 开发配置默认在 warn 级别打印调用栈，对游戏日志没有意义
	cfg.DisableStacktrace = level > zapcore.DebugLevel

	return cfg.Build()
}
