package command

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/joystick"
)

// DefaultPeriod is the dispatch cadence.
const DefaultPeriod = 100 * time.Millisecond

// errorLogInterval limits how often dispatch failures are logged.
const errorLogInterval = 5 * time.Second

// Sender delivers a command to the controller.
type Sender interface {
	Move(ctx context.Context, axes joystick.Axes, v joystick.Vector) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, axes joystick.Axes, v joystick.Vector) error

// Move implements Sender.
func (f SenderFunc) Move(ctx context.Context, axes joystick.Axes, v joystick.Vector) error {
	return f(ctx, axes, v)
}

// DefaultReleaseTimeout bounds the neutral command sent on release.
const DefaultReleaseTimeout = 5 * time.Second

// Stats are the dispatcher counters.
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Sent     uint64 `json:"sent"`
	Skipped  uint64 `json:"skipped"`
	Stale    uint64 `json:"stale"`
	Releases uint64 `json:"releases"`
	Errors   uint64 `json:"errors"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPeriod sets the tick period.
func WithPeriod(p time.Duration) Option {
	return func(d *Dispatcher) {
		if p > 0 {
			d.period = p
		}
	}
}

// WithReleaseTimeout bounds each release send. Zero leaves it unbounded.
func WithReleaseTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.releaseTimeout = t }
}

// WithHolder shares an existing holder.
func WithHolder(h *Holder) Option {
	return func(d *Dispatcher) { d.holder = h }
}

// WithLogger overrides the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// job is one queued command. epoch is the release count it was read under.
type job struct {
	ctx     context.Context
	v       joystick.Vector
	epoch   uint64
	release bool
}

// Dispatcher forwards the held command of one joystick at a fixed period.
// Idle ticks send nothing; the only neutral command is the one sent on release.
//
// Commands reach the sender one at a time, in the order they were queued, on
// a goroutine of their own: neither a tick nor a release waits for the
// network. A tick that finds a send still in flight is skipped. A command
// read before a release is dropped if it has not started sending by then, so
// the release's neutral command is always the last one of an engagement.
type Dispatcher struct {
	axes           joystick.Axes
	sender         Sender
	holder         *Holder
	period         time.Duration
	releaseTimeout time.Duration
	logger         *slog.Logger

	qmu     sync.Mutex
	idle    *sync.Cond
	pending []job
	pumping bool
	epoch   uint64

	stop chan struct{}
	once sync.Once

	ticks    atomic.Uint64
	sent     atomic.Uint64
	skipped  atomic.Uint64
	stale    atomic.Uint64
	releases atomic.Uint64
	errors   atomic.Uint64

	errMu        sync.Mutex
	lastErrorLog time.Time
}

// New creates a dispatcher for one joystick.
func New(axes joystick.Axes, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		axes:           axes,
		sender:         sender,
		period:         DefaultPeriod,
		releaseTimeout: DefaultReleaseTimeout,
		stop:           make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.qmu)
	for _, opt := range opts {
		opt(d)
	}
	if d.holder == nil {
		d.holder = &Holder{}
	}
	if d.logger == nil {
		d.logger = log.Component("dispatch").With("axes", axes.Name)
	}
	return d
}

// Holder returns the command holder the dispatcher reads.
func (d *Dispatcher) Holder() *Holder { return d.holder }

// Period returns the tick period.
func (d *Dispatcher) Period() time.Duration { return d.period }

// Bind subscribes the dispatcher to a joystick: samples overwrite the held
// command, a release resets it and queues neutral immediately.
func (d *Dispatcher) Bind(e *joystick.Engine) {
	e.OnSample(func(s joystick.Sample) {
		d.holder.Set(s.Vector)
	})
	e.OnRelease(d.Release)
}

// Run ticks until ctx is cancelled or Stop is called. A failed dispatch is
// logged and the loop keeps going.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	d.logger.Debug("dispatch loop started", "period", d.period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick queues the held command if there is one.
func (d *Dispatcher) tick(ctx context.Context) {
	d.ticks.Add(1)

	d.qmu.Lock()
	defer d.qmu.Unlock()
	v, ok := d.holder.Load()
	if !ok {
		return
	}
	if d.pumping {
		d.skipped.Add(1)
		return
	}
	d.enqueueLocked(job{ctx: ctx, v: v, epoch: d.epoch})
}

// Release resets the holder to neutral and queues one neutral command right
// away so the vehicle stops without waiting for the next tick. It never
// blocks on the network and is not tied to the loop's lifetime: a release
// after Stop still sends neutral.
func (d *Dispatcher) Release() {
	d.qmu.Lock()
	defer d.qmu.Unlock()

	d.holder.Reset()
	d.epoch++
	d.releases.Add(1)
	d.enqueueLocked(job{ctx: context.Background(), v: joystick.Neutral, epoch: d.epoch, release: true})
}

// Wait blocks until every queued command has been sent or dropped.
func (d *Dispatcher) Wait() {
	d.qmu.Lock()
	for d.pumping {
		d.idle.Wait()
	}
	d.qmu.Unlock()
}

func (d *Dispatcher) enqueueLocked(j job) {
	d.pending = append(d.pending, j)
	if !d.pumping {
		d.pumping = true
		go d.pump()
	}
}

// pump sends queued commands in order until the queue is empty.
func (d *Dispatcher) pump() {
	for {
		d.qmu.Lock()
		if len(d.pending) == 0 {
			d.pumping = false
			d.idle.Broadcast()
			d.qmu.Unlock()
			return
		}
		j := d.pending[0]
		d.pending = d.pending[1:]
		stale := !j.release && j.epoch != d.epoch
		d.qmu.Unlock()

		if stale {
			d.stale.Add(1)
			continue
		}
		d.send(j)
	}
}

func (d *Dispatcher) send(j job) {
	if d.sender == nil {
		return
	}
	ctx := j.ctx
	if j.release && d.releaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.releaseTimeout)
		defer cancel()
	}
	if err := d.sender.Move(ctx, d.axes, j.v); err != nil {
		n := d.errors.Add(1)
		d.logError(err, n)
		return
	}
	d.sent.Add(1)
}

// logError logs at most once per errorLogInterval.
func (d *Dispatcher) logError(err error, total uint64) {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if !d.lastErrorLog.IsZero() && time.Since(d.lastErrorLog) < errorLogInterval {
		return
	}
	d.lastErrorLog = time.Now()
	d.logger.Warn("dispatch failed", "error", err, "total_errors", total)
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Ticks:    d.ticks.Load(),
		Sent:     d.sent.Load(),
		Skipped:  d.skipped.Load(),
		Stale:    d.stale.Load(),
		Releases: d.releases.Load(),
		Errors:   d.errors.Load(),
	}
}

// Stop halts Run. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
}
