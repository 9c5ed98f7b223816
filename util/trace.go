package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace 记录一段操作的耗时，用法：defer util.Trace(logger, "process batch")()
func Trace(logger *zap.Logger, msg string, fields ...zap.Field) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	logger.Debug(msg+" started", fields...)
	return func() {
		// fields 可能与调用方共用底层数组，不能直接 append
		done := make([]zap.Field, 0, len(fields)+1)
		done = append(done, fields...)
		done = append(done, zap.Duration("duration", time.Since(start)))
		logger.Debug(msg+" finished", done...)
	}
}
