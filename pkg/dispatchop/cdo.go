// Package dispatchop implements the Channel Dispatch Operation (CDO): the
// state machine and client-coordination engine that fans out notifications
// to Observers, optionally gates progress behind Approvers, selects
// exactly one Handler, and tolerates channels disappearing, clients
// failing, and concurrent external claim/handle-with requests.
//
// Every exported method on CDO assumes it runs on the owning executor's
// single logical thread of control (see Executor); CDO performs no
// internal locking of its own, matching spec.md §5.
package dispatchop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// Counter hands out monotonically increasing unique names ("do<n>") for
// CDOs constructed in this process (spec.md §3: "assigned at construction
// from a monotonically increasing counter"). Threaded through explicitly
// rather than held as a package global so tests can run several
// independent counters without cross-test interference.
type Counter struct{ n atomic.Uint64 }

// NewCounter creates a Counter starting at do1.
func NewCounter() *Counter { return &Counter{} }

// Next returns the next unique name.
func (c *Counter) Next() string { return fmt.Sprintf("do%d", c.n.Add(1)) }

type lostChannelEntry struct {
	channel *Channel
	err     error
}

// CDO is one Channel Dispatch Operation: a batch of channels moving
// through observe -> approve -> handle (spec.md §3, §4).
type CDO struct {
	UniqueName string
	ObjectPath string

	channels         []*Channel
	lostChannels     []lostChannelEntry // reverse-chronological; see drainLostChannels
	possibleHandlers []string
	needsApproval    bool
	observeOnly      bool

	observersPending int
	approversPending int

	invokedEarlyClients bool
	approved            bool
	awaitingApproval    bool
	wantsToFinish       bool
	channelsHandled     bool
	cancelled           bool
	finished            bool
	finishReason         FinishReason

	chosenHandler  string
	handleWithTime float64
	claimer        string
	failedHandlers map[string]bool

	claimedEntries    []handlermap.Entry
	pendingClaimReply func(entries []handlermap.Entry)

	account    string
	connection string

	registry *registry.Registry
	hmap     *handlermap.Map
	proxy    ClientProxy
	sink     SignalSink
	exec     Executor

	callTimeout time.Duration
}

// DefaultCallTimeout bounds each client out-call when the caller does not
// override it.
const DefaultCallTimeout = 30 * time.Second

// New constructs a CDO over a non-empty channel list. Inputs mirror
// spec.md §4.1: a client registry reference, handler map reference,
// needsApproval/observeOnly flags, the channel batch, and (unless
// observeOnly) a best-first possible-handlers list.
//
// New validates the two forbidden combinations from spec.md §3, assigns
// the next object path from counter, takes ownership of every channel
// (registering an abort listener on each), extracts connection/account
// from the first channel, and — if needsApproval — marks the CDO for bus
// publication (callers are expected to check NeedsApproval() and publish
// accordingly; New itself has no transport dependency).
func New(
	counter *Counter,
	pathBase string,
	channels []*Channel,
	needsApproval, observeOnly bool,
	possibleHandlers []string,
	reg *registry.Registry,
	hmap *handlermap.Map,
	proxy ClientProxy,
	sink SignalSink,
	exec Executor,
	callTimeout time.Duration,
) (*CDO, error) {
	if needsApproval && observeOnly {
		return nil, fmt.Errorf("dispatchop: needs_approval and observe_only are mutually exclusive")
	}
	if !observeOnly && len(possibleHandlers) == 0 {
		return nil, fmt.Errorf("dispatchop: possible_handlers must be non-empty unless observe_only")
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("dispatchop: channels must be non-empty at construction")
	}
	if sink == nil {
		sink = NopSignalSink{}
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	name := counter.Next()
	op := &CDO{
		UniqueName:       name,
		ObjectPath:       pathBase + name,
		channels:         append([]*Channel(nil), channels...),
		possibleHandlers: append([]string(nil), possibleHandlers...),
		needsApproval:    needsApproval,
		observeOnly:      observeOnly,
		failedHandlers:   make(map[string]bool),
		registry:         reg,
		hmap:             hmap,
		proxy:            proxy,
		sink:             sink,
		exec:             exec,
		callTimeout:      callTimeout,
	}

	first := channels[0]
	op.connection = first.Connection
	op.account = first.Account
	if op.connection == "" {
		logger.Warn("cdo constructed without a connection reference", logger.KeyDispatchOp, name)
	}
	if op.account == "" {
		logger.Warn("cdo constructed without an account reference", logger.KeyDispatchOp, name)
	}

	for _, ch := range channels {
		ch.Status = StatusDispatching
		ch.OnAbort(func(aborted *Channel, err error) {
			op.exec.Submit(func() {
				if op.hmap != nil {
					op.hmap.Remove(aborted.ObjectPath)
				}
				op.onChannelAborted(aborted, err)
			})
		})
	}

	return op, nil
}

// NeedsApproval reports whether this CDO requires bus publication and an
// approval phase.
func (op *CDO) NeedsApproval() bool { return op.needsApproval }

// Channels returns a snapshot of the channels currently owned by this
// CDO. The slice is a copy; mutating it does not affect the CDO.
func (op *CDO) Channels() []*Channel {
	return append([]*Channel(nil), op.channels...)
}

// PossibleHandlers returns the best-first ordered candidate handler list
// computed at construction.
func (op *CDO) PossibleHandlers() []string {
	return append([]string(nil), op.possibleHandlers...)
}

// Account returns the account object path, or "" if unknown.
func (op *CDO) Account() string { return op.account }

// Connection returns the connection object path, or "" if unknown.
func (op *CDO) Connection() string { return op.connection }

// IsFinished reports whether Finished has already been emitted.
func (op *CDO) IsFinished() bool { return op.finished }

// Run starts the observer/approver fan-out (spec.md §4.4). Must be called
// exactly once, after construction, from the owning executor.
func (op *CDO) Run(ctx context.Context) {
	op.runClients(ctx)
}

// HandleWith implements spec.md §4.6: validates name, records it
// (namespace-stripped), stamps handle_with_time, and triggers finish.
func (op *CDO) HandleWith(name string) error {
	if op.wantsToFinish {
		return ErrNotYours
	}

	stripped, err := op.registry.ValidateWellKnownName(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	op.chosenHandler = stripped
	op.handleWithTime = float64(time.Now().Unix())
	logger.Info("handle-with received", logger.KeyDispatchOp, op.UniqueName, logger.KeyHandler, stripped)

	op._finish()
	return nil
}

// Claim implements spec.md §4.6: records the caller as claimer, defers
// reply until finish, and triggers finish. reply is invoked exactly once,
// either immediately with ErrNotYours (or ErrInvalidArgument for a
// malformed caller name), or later (from the finish step) with the
// handler-map entries recorded for the claimer.
func (op *CDO) Claim(caller string, reply func(entries []handlermap.Entry, err error)) {
	if op.wantsToFinish {
		reply(nil, ErrNotYours)
		return
	}

	stripped, err := op.registry.ValidateWellKnownName(caller)
	if err != nil {
		reply(nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err))
		return
	}

	op.claimer = stripped
	op.pendingClaimReply = func(entries []handlermap.Entry) { reply(entries, nil) }
	logger.Info("claim received", logger.KeyDispatchOp, op.UniqueName, logger.KeyClaimer, stripped)

	op._finish()
}

// _finish implements spec.md §4.7's entry point: latches wants_to_finish
// and runs the finish step immediately if the CDO may finish, else defers
// it to whichever counter decrement drains the last lock.
func (op *CDO) _finish() {
	op.wantsToFinish = true
	if op.mayFinish() {
		op.runFinishStep()
	}
}

// mayFinish reports whether both client-lock counters are drained
// (spec.md §3 invariant 3).
func (op *CDO) mayFinish() bool {
	return op.observersPending == 0 && op.approversPending == 0
}

// runFinishStep implements spec.md §4.7's finish step. Idempotent: once
// Finished has been emitted, further calls are no-ops.
func (op *CDO) runFinishStep() {
	if op.finished {
		return
	}

	if len(op.channels) == 0 && !op.channelsHandled {
		op.channelsHandled = true
		if op.finishReason.Kind == FinishUnset {
			op.finishReason = FinishReason{Kind: FinishNoHandlers}
		}
	}

	if op.claimer != "" && !op.channelsHandled {
		op.claimedEntries = make([]handlermap.Entry, 0, len(op.channels))
		for _, ch := range op.channels {
			op.hmap.Set(ch.ObjectPath, op.claimer, op.account)
			ch.Status = StatusDispatched
			op.claimedEntries = append(op.claimedEntries, handlermap.Entry{
				ChannelPath: ch.ObjectPath,
				HandlerName: op.claimer,
				AccountPath: op.account,
			})
		}
		op.channelsHandled = true
		op.finishReason = FinishReason{Kind: FinishByClaim, HandlerName: op.claimer}
	}

	if op.awaitingApproval && !op.approved {
		op.approved = true
		op.checkLocksAndProceed()
		if op.finished {
			// The nested call above re-entered runFinishStep and already
			// carried this CDO across the finish line (e.g. a pending
			// Claim resolved once approval latched); nothing left to do.
			return
		}
	}

	if op.pendingClaimReply != nil {
		reply := op.pendingClaimReply
		entries := op.claimedEntries
		op.pendingClaimReply = nil
		reply(entries)
	}

	if op.channelsHandled {
		op.finished = true
		logger.Info("cdo finished", logger.KeyDispatchOp, op.UniqueName, "reason", op.finishReason.Kind.String())
		op.sink.Finished(op, op.finishReason)
	}
}
