// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otcds

import (
	"errors"
	"fmt"

	"github.com/petenewcomb/cds-go/dhp"
	"github.com/petenewcomb/cds-go/fc"
	"github.com/petenewcomb/cds-go/internal/cerr"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/metric"
)

const (
	ErrDuplicateName = cerr.Error("instrument name already registered")
	ErrUnknownName   = cerr.Error("instrument name not registered")
)

// Registry tracks the collectors and kernels published on one meter so they
// can be unregistered by name.
type Registry struct {
	meter metric.Meter
	regs  *xsync.MapOf[string, metric.Registration]
}

func NewRegistry(meter metric.Meter) *Registry {
	return &Registry{
		meter: meter,
		regs:  xsync.NewMapOf[string, metric.Registration](),
	}
}

func (r *Registry) add(name string, register func() (metric.Registration, error)) error {
	if _, ok := r.regs.Load(name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	reg, err := register()
	if err != nil {
		return err
	}
	if _, loaded := r.regs.LoadOrStore(name, reg); loaded {
		// Lost a race with another registration of the same name.
		_ = reg.Unregister()
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

// AddGC publishes gc's statistics under name. See [RegisterGC].
func (r *Registry) AddGC(name string, gc *dhp.GC) error {
	return r.add(name, func() (metric.Registration, error) {
		return RegisterGC(r.meter, name, gc)
	})
}

// AddKernel publishes the statistics returned by stats under name. See
// [RegisterKernel].
func (r *Registry) AddKernel(name string, stats func() fc.Stat) error {
	return r.add(name, func() (metric.Registration, error) {
		return RegisterKernel(r.meter, name, stats)
	})
}

// Remove stops observing the collector or kernel registered under name.
func (r *Registry) Remove(name string) error {
	reg, ok := r.regs.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return reg.Unregister()
}

// Names returns the registered names in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.regs.Size())
	r.regs.Range(func(name string, _ metric.Registration) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Close removes every registration, returning the joined unregistration
// errors.
func (r *Registry) Close() error {
	var errs []error
	r.regs.Range(func(name string, _ metric.Registration) bool {
		if reg, ok := r.regs.LoadAndDelete(name); ok {
			errs = append(errs, reg.Unregister())
		}
		return true
	})
	return errors.Join(errs...)
}
