// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otcds

import (
	"time"

	"github.com/petenewcomb/cds-go/fc"
	"go.uber.org/zap"
)

// LoggedApply adds structured logging to a container apply function. Each call
// is logged at debug level on the global zap logger with the operation code
// and timing. A panicking apply is logged at error level before the panic
// continues.
func LoggedApply[T any](
	operationName string,
	apply func(rec *fc.Record[T]),
) fc.ContainerFunc[T] {
	return func(rec *fc.Record[T]) {
		logger := zap.L()
		op := rec.Op()

		startTime := time.Now()
		didPanic := true
		defer func() {
			duration := time.Since(startTime)
			if didPanic {
				logger.Error("Apply panicked",
					zap.String("operation", operationName),
					zap.String("component", "otcds"),
					zap.Int32("op", op),
					zap.Duration("duration", duration))
				return
			}
			logger.Debug("Apply completed",
				zap.String("operation", operationName),
				zap.String("component", "otcds"),
				zap.Int32("op", op),
				zap.Duration("duration", duration))
		}()

		apply(rec)
		didPanic = false
	}
}

// InstrumentedApply combines metrics and logging for an apply function.
func InstrumentedApply[T any](
	operationName string,
	apply func(rec *fc.Record[T]),
) fc.ContainerFunc[T] {
	return MeteredApply(operationName, LoggedApply(operationName, apply))
}
