package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// stageFunc is one unit of build-pipeline work.
type stageFunc func(ctx context.Context) error

// runStage executes a named pipeline stage with logging, timing and an
// optional timeout. A zero timeout means the stage inherits the caller's
// deadline unchanged.
func runStage(ctx context.Context, logger *zap.Logger, name string, timeout time.Duration, fn stageFunc) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	logger.Debug("stage started", zap.String("stage", name))

	err := fn(ctx)

	elapsed := time.Since(start)
	if err != nil {
		logger.Warn("stage failed",
			zap.String("stage", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return err
	}
	logger.Debug("stage completed",
		zap.String("stage", name),
		zap.Duration("elapsed", elapsed))
	return nil
}
