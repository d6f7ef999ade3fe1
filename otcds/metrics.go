// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package otcds provides OpenTelemetry and zap integration for the cds
// packages. Collector and kernel statistics are published as observable
// instruments, and container apply functions can be wrapped with metrics,
// logging and tracing.
package otcds

import (
	"context"
	"time"

	"github.com/petenewcomb/cds-go/dhp"
	"github.com/petenewcomb/cds-go/fc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/petenewcomb/cds-go/otcds"

// RegisterGC publishes gc's statistics on meter under the given name prefix.
// Counters only advance if gc was created with statistics enabled; the
// gauges are always live. Unregister the returned registration to stop
// observing gc.
func RegisterGC(meter metric.Meter, name string, gc *dhp.GC) (metric.Registration, error) {
	retired, err := meter.Int64ObservableCounter(name+".retired",
		metric.WithDescription("Pointers handed to the collector"))
	if err != nil {
		return nil, err
	}
	freed, err := meter.Int64ObservableCounter(name+".freed",
		metric.WithDescription("Pointers passed to their disposer"))
	if err != nil {
		return nil, err
	}
	rebuffered, err := meter.Int64ObservableCounter(name+".rebuffered",
		metric.WithDescription("Pointers found guarded and kept for a later scan"))
	if err != nil {
		return nil, err
	}
	scans, err := meter.Int64ObservableCounter(name+".scans")
	if err != nil {
		return nil, err
	}
	skipped, err := meter.Int64ObservableCounter(name+".scans_skipped")
	if err != nil {
		return nil, err
	}
	doubled, err := meter.Int64ObservableCounter(name+".threshold_doubled")
	if err != nil {
		return nil, err
	}
	buffered, err := meter.Int64ObservableGauge(name+".buffered")
	if err != nil {
		return nil, err
	}
	threshold, err := meter.Int64ObservableGauge(name+".liberate_threshold")
	if err != nil {
		return nil, err
	}
	epoch, err := meter.Int64ObservableGauge(name+".epoch")
	if err != nil {
		return nil, err
	}
	attached, err := meter.Int64ObservableGauge(name+".attached_threads")
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := gc.Statistics()
		o.ObserveInt64(retired, st.Retired)
		o.ObserveInt64(freed, st.Freed)
		o.ObserveInt64(rebuffered, st.Rebuffered)
		o.ObserveInt64(scans, st.Scans)
		o.ObserveInt64(skipped, st.ScansSkipped)
		o.ObserveInt64(doubled, st.ThresholdDoubled)
		o.ObserveInt64(buffered, st.Buffered)
		o.ObserveInt64(threshold, st.LiberateThreshold)
		o.ObserveInt64(epoch, int64(st.Epoch))
		o.ObserveInt64(attached, st.AttachedThreads)
		return nil
	}, retired, freed, rebuffered, scans, skipped, doubled, buffered, threshold, epoch, attached)
}

// RegisterKernel publishes the statistics returned by stats on meter under the
// given name prefix. stats is typically a kernel's or a container's
// Statistics method.
func RegisterKernel(meter metric.Meter, name string, stats func() fc.Stat) (metric.Registration, error) {
	operations, err := meter.Int64ObservableCounter(name+".operations")
	if err != nil {
		return nil, err
	}
	combinings, err := meter.Int64ObservableCounter(name+".combinings")
	if err != nil {
		return nil, err
	}
	compactions, err := meter.Int64ObservableCounter(name+".compactions")
	if err != nil {
		return nil, err
	}
	passiveWaits, err := meter.Int64ObservableCounter(name+".passive_waits")
	if err != nil {
		return nil, err
	}
	records, err := meter.Int64ObservableGauge(name+".records",
		metric.WithDescription("Publication records created and not yet deleted"))
	if err != nil {
		return nil, err
	}
	factor, err := meter.Float64ObservableGauge(name+".combining_factor",
		metric.WithDescription("Mean operations per combining cycle"))
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := stats()
		o.ObserveInt64(operations, st.Operations)
		o.ObserveInt64(combinings, st.Combinings)
		o.ObserveInt64(compactions, st.Compactions)
		o.ObserveInt64(passiveWaits, st.PassiveWaits)
		o.ObserveInt64(records, st.RecordsCreated-st.RecordsDeleted)
		o.ObserveFloat64(factor, st.CombiningFactor())
		return nil
	}, operations, combinings, compactions, passiveWaits, records, factor)
}

// MeteredApply adds metrics collection to a container apply function. It
// records a count and a duration histogram per call, using the global meter
// provider.
func MeteredApply[T any](
	metricName string,
	apply func(rec *fc.Record[T]),
) fc.ContainerFunc[T] {
	meter := otel.GetMeterProvider().Meter(instrumentationName)
	counter, _ := meter.Int64Counter(metricName + ".count")
	duration, _ := meter.Float64Histogram(metricName+".duration", metric.WithUnit("s"))

	return func(rec *fc.Record[T]) {
		ctx := context.Background()
		startTime := time.Now()
		counter.Add(ctx, 1)
		apply(rec)
		duration.Record(ctx, time.Since(startTime).Seconds())
	}
}
