// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otcds

import (
	"context"

	"github.com/petenewcomb/cds-go/dhp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Exclusive is implemented by [fc.Kernel] and lets TracedInvokeExclusive
// accept any kernel regardless of its payload type.
type Exclusive interface {
	InvokeExclusive(fn func())
}

// TracedForceDispose runs gc.ForceDispose inside a span named operationName,
// annotated with how many pointers the pass freed and how many remain
// buffered. The counts are only meaningful if gc has statistics enabled.
func TracedForceDispose(ctx context.Context, operationName string, gc *dhp.GC) {
	tracer := otel.Tracer(instrumentationName)
	_, span := tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.Int64("dhp.liberate_threshold", int64(gc.LiberateThreshold())),
	))
	defer span.End()

	before := gc.Statistics()
	gc.ForceDispose()
	after := gc.Statistics()

	span.SetAttributes(
		attribute.Int64("dhp.freed", after.Freed-before.Freed),
		attribute.Int64("dhp.buffered", after.Buffered),
		attribute.Int64("dhp.epoch", int64(after.Epoch)),
	)
}

// TracedInvokeExclusive runs fn under k's combiner lock inside a span named
// operationName. The span covers the time spent waiting for the lock.
func TracedInvokeExclusive(ctx context.Context, operationName string, k Exclusive, fn func(ctx context.Context)) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, operationName)
	defer span.End()

	k.InvokeExclusive(func() {
		span.AddEvent("lock acquired")
		fn(ctx)
	})
}
