// Package pool provides a bounded pool of device-pinned model handles
// shared across concurrent pipeline stages.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InitError reports a handle that failed to come up on its assigned device.
// The pool never falls back to a different device.
type InitError struct {
	Component string
	Device    string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: init model handle on %s: %v", e.Component, e.Device, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Factory constructs one model handle pinned to the given device.
type Factory[H any] func(ctx context.Context, device string) (H, error)

type Options struct {
	Component string
	Size      int
	Devices   []string
	LazyLoad  bool
}

type slot[H any] struct {
	handle H
	device string
	ready  bool
}

// Pool hands out at most Size concurrent model handles. With LazyLoad the
// underlying model is constructed on first acquire of a slot; otherwise all
// handles are built eagerly in New.
type Pool[H any] struct {
	opts    Options
	factory Factory[H]
	slots   chan *slot[H]
	inUse   atomic.Int64
	built   atomic.Int64
	log     *slog.Logger
}

func New[H any](ctx context.Context, opts Options, factory Factory[H], log *slog.Logger) (*Pool[H], error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%s: pool size must be >= 1", opts.Component)
	}
	p := &Pool[H]{
		opts:    opts,
		factory: factory,
		slots:   make(chan *slot[H], opts.Size),
		log:     log.With(slog.String("component", opts.Component+"-pool")),
	}
	for i := 0; i < opts.Size; i++ {
		s := &slot[H]{device: p.deviceFor(i)}
		if !opts.LazyLoad {
			handle, err := factory(ctx, s.device)
			if err != nil {
				return nil, &InitError{Component: opts.Component, Device: s.device, Err: err}
			}
			s.handle = handle
			s.ready = true
			p.built.Add(1)
		}
		p.slots <- s
	}
	if err := p.initMetrics(); err != nil {
		p.log.Warn("failed to initialize pool metrics", slog.String("error", err.Error()))
	}
	p.log.Info("pool ready",
		slog.Int("size", opts.Size),
		slog.Bool("lazy_load", opts.LazyLoad),
		slog.Any("devices", opts.Devices))
	return p, nil
}

func (p *Pool[H]) deviceFor(i int) string {
	if len(p.opts.Devices) == 0 {
		return ""
	}
	return p.opts.Devices[i%len(p.opts.Devices)]
}

// Lease is a checked-out handle. Release returns it to the pool; releasing
// twice is a no-op.
type Lease[H any] struct {
	Handle H
	Device string
	pool   *Pool[H]
	slot   *slot[H]
	once   sync.Once
}

func (l *Lease[H]) Release() {
	l.once.Do(func() {
		l.pool.inUse.Add(-1)
		l.pool.slots <- l.slot
	})
}

// Acquire blocks until a handle is free or ctx is done. A lazily-loaded slot
// is built here; on init failure the slot goes back unbuilt and the error is
// returned to the caller.
func (p *Pool[H]) Acquire(ctx context.Context) (*Lease[H], error) {
	var s *slot[H]
	select {
	case s = <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !s.ready {
		handle, err := p.factory(ctx, s.device)
		if err != nil {
			p.slots <- s
			return nil, &InitError{Component: p.opts.Component, Device: s.device, Err: err}
		}
		s.handle = handle
		s.ready = true
		p.built.Add(1)
	}
	p.inUse.Add(1)
	return &Lease[H]{Handle: s.handle, Device: s.device, pool: p, slot: s}, nil
}

// With runs fn under a scoped acquisition, releasing on every exit path.
func (p *Pool[H]) With(ctx context.Context, fn func(H) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease.Handle)
}

// InUse reports the number of currently held handles.
func (p *Pool[H]) InUse() int { return int(p.inUse.Load()) }

// Built reports how many handles have been constructed so far.
func (p *Pool[H]) Built() int { return int(p.built.Load()) }

func (p *Pool[H]) Size() int { return p.opts.Size }

func (p *Pool[H]) initMetrics() error {
	meter := otel.Meter("github.com/ambiware-labs/voxforge/pool")
	attrs := metric.WithAttributes(attribute.String("pool", p.opts.Component))
	sizeGauge, err := meter.Int64ObservableGauge("voxforge.pool.size",
		metric.WithDescription("Configured pool capacity"))
	if err != nil {
		return err
	}
	inUseGauge, err := meter.Int64ObservableGauge("voxforge.pool.in_use",
		metric.WithDescription("Handles currently checked out"))
	if err != nil {
		return err
	}
	builtGauge, err := meter.Int64ObservableGauge("voxforge.pool.built",
		metric.WithDescription("Handles constructed so far"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(sizeGauge, int64(p.opts.Size), attrs)
		obs.ObserveInt64(inUseGauge, p.inUse.Load(), attrs)
		obs.ObserveInt64(builtGauge, p.built.Load(), attrs)
		return nil
	}, sizeGauge, inUseGauge, builtGauge)
	return err
}
