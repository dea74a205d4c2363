// Package dispatcher implements the per-process owner of Channel Dispatch
// Operations: the single event-loop goroutine that serializes every CDO
// mutation (spec.md §5), and the admission pipeline that sits in front of
// CDO construction (SPEC_FULL.md §4.8).
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// ErrNoCapability is returned (and used to abort the offending channel) when
// no registered handler and no filter chain entry exists for a channel's
// type/direction pair (SPEC_FULL.md §4.8 step 1).
var ErrNoCapability = fmt.Errorf("dispatcher: no registered handler or filter chain entry for this channel type")

// ErrStopped is returned by Submit once the Dispatcher's event loop has
// been stopped.
var ErrStopped = fmt.Errorf("dispatcher: event loop stopped")

// Dispatcher owns one event-loop goroutine and is the sole Executor every
// CDO it constructs submits its mutations onto. It also owns the admission
// pipeline: channel-type capability checks, the channel-type/direction
// filter chain, and handler-map-driven redispatch.
type Dispatcher struct {
	pathBase    string
	registry    *registry.Registry
	hmap        *handlermap.Map
	chain       *filterchain.Chain
	proxy       dispatchop.ClientProxy
	counter     *dispatchop.Counter
	callTimeout time.Duration

	eventLoop chan func()
	stopped   chan struct{}
	stopOnce  sync.Once

	sinkMu      sync.RWMutex
	defaultSink dispatchop.SignalSink

	// pendingMu/pending hold closures Submit could not hand off directly
	// to the event loop (the loop goroutine was busy running another
	// closure — including, critically, the case where that closure is
	// itself the one calling Submit, e.g. a Channel.Abort listener firing
	// synchronously inside handler selection). Queued here instead of
	// blocking, so the loop drains them right after its current closure
	// returns rather than deadlocking on a self-send.
	pendingMu sync.Mutex
	pending   []func()

	mu   sync.RWMutex
	cdos map[string]*dispatchop.CDO
}

// New constructs a Dispatcher. Run must be called before any channel is
// submitted for dispatch.
func New(pathBase string, reg *registry.Registry, hmap *handlermap.Map, chain *filterchain.Chain, proxy dispatchop.ClientProxy, counter *dispatchop.Counter, callTimeout time.Duration) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = dispatchop.DefaultCallTimeout
	}
	return &Dispatcher{
		pathBase:    pathBase,
		registry:    reg,
		hmap:        hmap,
		chain:       chain,
		proxy:       proxy,
		counter:     counter,
		callTimeout: callTimeout,
		eventLoop:   make(chan func()),
		stopped:     make(chan struct{}),
		cdos:        make(map[string]*dispatchop.CDO),
		defaultSink: dispatchop.NopSignalSink{},
	}
}

// SetDefaultSink sets the SignalSink used for CDOs the Dispatcher
// constructs on its own initiative rather than in response to a caller
// that supplies one (Redispatch). The owning daemon calls this once at
// startup with the same sink its API server's SSE stream subscribes
// against, so an orphaned channel's redispatch is visible to observers
// exactly like any other CDO.
func (d *Dispatcher) SetDefaultSink(sink dispatchop.SignalSink) {
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	d.defaultSink = sink
}

func (d *Dispatcher) getDefaultSink() dispatchop.SignalSink {
	d.sinkMu.RLock()
	defer d.sinkMu.RUnlock()
	return d.defaultSink
}

// Run drains the event loop until ctx is cancelled or Stop is called.
// Intended to be started in its own goroutine by the owning daemon.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		d.drainPending()
		select {
		case fn := <-d.eventLoop:
			fn()
		case <-ctx.Done():
			return
		case <-d.stopped:
			return
		}
	}
}

func (d *Dispatcher) drainPending() {
	for {
		d.pendingMu.Lock()
		if len(d.pending) == 0 {
			d.pendingMu.Unlock()
			return
		}
		fn := d.pending[0]
		d.pending = d.pending[1:]
		d.pendingMu.Unlock()
		fn()
	}
}

// Stop halts the event loop. Submit calls made after Stop are no-ops.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

// Submit implements dispatchop.Executor: fn runs on the event-loop
// goroutine, in submission order whenever the loop is idle and ready to
// receive directly. When the loop is busy — including the reentrant case
// where the closure currently running on the loop is itself calling
// Submit — fn is queued instead, and the loop picks it up the moment its
// current closure returns (see drainPending), so Submit never blocks the
// goroutine it would otherwise be waiting on.
func (d *Dispatcher) Submit(fn func()) {
	select {
	case d.eventLoop <- fn:
	case <-d.stopped:
	default:
		d.pendingMu.Lock()
		d.pending = append(d.pending, fn)
		d.pendingMu.Unlock()
	}
}

// CDO looks up a currently-tracked dispatch operation by its unique name.
func (d *Dispatcher) CDO(uniqueName string) (*dispatchop.CDO, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	op, ok := d.cdos[uniqueName]
	return op, ok
}

// List returns every CDO currently tracked (SPEC_FULL.md §6.1 operator
// listing). Order is unspecified.
func (d *Dispatcher) List() []*dispatchop.CDO {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*dispatchop.CDO, 0, len(d.cdos))
	for _, op := range d.cdos {
		out = append(out, op)
	}
	return out
}

func (d *Dispatcher) track(op *dispatchop.CDO) {
	d.mu.Lock()
	d.cdos[op.UniqueName] = op
	d.mu.Unlock()
}

func (d *Dispatcher) untrack(uniqueName string) {
	d.mu.Lock()
	delete(d.cdos, uniqueName)
	d.mu.Unlock()
}
